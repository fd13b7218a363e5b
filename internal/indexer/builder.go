package indexer

import (
	"fmt"
	"strings"

	"github.com/hyperjump/yomu/internal/models"
)

// BuildUnits turns extracted pages into retrievable units. For each page the text
// unit comes first, then one unit per table, then one per image. IDs and sequence
// numbers are assigned later by Sequence.
func BuildUnits(source string, pages []models.PageContent) []models.RetrievableUnit {
	var units []models.RetrievableUnit
	for i := range pages {
		units = append(units, pageUnits(source, &pages[i])...)
	}
	return units
}

func pageUnits(source string, p *models.PageContent) []models.RetrievableUnit {
	var units []models.RetrievableUnit
	if p.Text != "" {
		meta := map[string]interface{}{
			models.MetaSource:      source,
			models.MetaPage:        p.Page,
			models.MetaContentType: string(models.KindText),
			models.MetaSections:    p.SectionTitles(),
			models.MetaHasTables:   len(p.Tables) > 0,
			models.MetaHasImages:   len(p.Images) > 0,
			models.MetaTableCount:  len(p.Tables),
			models.MetaImageCount:  len(p.Images),
		}
		if len(p.Sections) > 0 {
			meta[models.MetaMainSection] = p.Sections[0].Text
		}
		units = append(units, models.RetrievableUnit{
			Content:  p.Text,
			Kind:     models.KindText,
			Source:   source,
			Page:     p.Page,
			Metadata: meta,
		})
	}

	for _, t := range p.Tables {
		body := tableText(t)
		if strings.TrimSpace(body) == "" {
			continue
		}
		units = append(units, models.RetrievableUnit{
			Content: fmt.Sprintf("Table: %s\n\n%s", t.Summary, body),
			Kind:    models.KindTable,
			Source:  source,
			Page:    p.Page,
			Metadata: map[string]interface{}{
				models.MetaSource:       source,
				models.MetaPage:         p.Page,
				models.MetaContentType:  string(models.KindTable),
				models.MetaTableID:      t.ID,
				models.MetaTableSummary: t.Summary,
			},
		})
	}

	for _, img := range p.Images {
		units = append(units, models.RetrievableUnit{
			Content: fmt.Sprintf("Image description: %s (Size: %s)", img.Description, img.Size),
			Kind:    models.KindImage,
			Source:  source,
			Page:    p.Page,
			Metadata: map[string]interface{}{
				models.MetaSource:      source,
				models.MetaPage:        p.Page,
				models.MetaContentType: string(models.KindImage),
				models.MetaImageID:     img.ID,
				models.MetaImageSize:   img.Size,
			},
		})
	}
	return units
}

// tableText renders the cell matrix one row per line with non-empty cells joined
// by " | ". Tables without a matrix fall back to their raw lines.
func tableText(t models.Table) string {
	if len(t.Rows) == 0 {
		return strings.Join(t.Lines, "\n")
	}
	lines := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if len(row) == 0 {
			continue
		}
		cells := make([]string, 0, len(row))
		for _, c := range row {
			if c != "" {
				cells = append(cells, c)
			}
		}
		lines = append(lines, strings.Join(cells, " | "))
	}
	return strings.Join(lines, "\n")
}

// Sequence assigns strictly increasing sequence numbers and key-scoped IDs in place.
func Sequence(key string, units []models.RetrievableUnit) {
	for i := range units {
		units[i].Sequence = i
		units[i].ID = fmt.Sprintf("%s:%d", key, i)
	}
}
