package segment

// Windows splits text into overlapping fixed-size character windows. Window i
// starts at rune i*(size-overlap) and spans up to size runes; the last window
// ends at the end of text. For a text of L runes with L > size this yields
// ceil((L-overlap)/(size-overlap)) windows. Empty text yields none.
func Windows(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if size <= 0 {
		return []string{text}
	}
	step := size - overlap
	if step <= 0 {
		step = 1
	}
	windows := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		windows = append(windows, string(runes[start:end]))
		if end >= len(runes) {
			break
		}
	}
	return windows
}
