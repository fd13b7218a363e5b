package extract

import (
	"fmt"
	"sort"

	"github.com/ledongthuc/pdf"

	"github.com/hyperjump/yomu/internal/models"
)

// pageImages enumerates the image XObjects of a page. Placement boxes come from
// the transformation matrix in effect at each Do operator; images that are
// declared but never drawn keep a zero box.
func pageImages(page pdf.Page) (images []models.ImageRef, err error) {
	defer func() {
		if r := recover(); r != nil {
			images = nil
			err = fmt.Errorf("image enumeration: %v", r)
		}
	}()

	xobjects := page.Resources().Key("XObject")
	if xobjects.Kind() != pdf.Dict {
		return nil, nil
	}

	names := xobjects.Keys()
	sort.Strings(names)
	byName := make(map[string]int)
	for _, name := range names {
		x := xobjects.Key(name)
		if x.Key("Subtype").Name() != "Image" {
			continue
		}
		byName[name] = len(images)
		images = append(images, models.ImageRef{
			Name:   name,
			Width:  int(x.Key("Width").Int64()),
			Height: int(x.Key("Height").Int64()),
		})
	}
	if len(images) == 0 {
		return nil, nil
	}

	contents := page.V.Key("Contents")
	if contents.Kind() == pdf.Null {
		return images, nil
	}

	ctm := identity
	var stack []matrix
	pdf.Interpret(contents, func(stk *pdf.Stack, op string) {
		n := stk.Len()
		args := make([]pdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		switch op {
		case "q":
			stack = append(stack, ctm)
		case "Q":
			if len(stack) > 0 {
				ctm = stack[len(stack)-1]
				stack = stack[:len(stack)-1]
			}
		case "cm":
			if len(args) != 6 {
				return
			}
			var m matrix
			for i := 0; i < 6; i++ {
				m[i] = args[i].Float64()
			}
			ctm = m.mul(ctm)
		case "Do":
			if len(args) != 1 {
				return
			}
			idx, ok := byName[args[0].Name()]
			if !ok {
				return
			}
			images[idx].BBox = ctm.unitBox()
		}
	})
	return images, nil
}

// matrix is a PDF affine transform [a b c d e f].
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// unitBox maps the unit square through m, which is where image space lands on the page.
func (m matrix) unitBox() models.Rect {
	var r models.Rect
	for i, p := range [][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		x, y := m.apply(p[0], p[1])
		if i == 0 {
			r = models.Rect{X0: x, Y0: y, X1: x, Y1: y}
			continue
		}
		r = union(r, models.Rect{X0: x, Y0: y, X1: x, Y1: y})
	}
	return r
}
