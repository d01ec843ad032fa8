package mappings

import "sort"

// normalizeLine makes the records in [start, end) non-decreasing by generated
// column. Already sorted lines, the common case, are left untouched. Otherwise
// the records are stably sorted, so segments sharing a column keep their
// encoded order.
func normalizeLine(buf []uint32, start, end int) {
	if lineSorted(buf, start, end) {
		return
	}

	records := make([][recordSize]uint32, 0, end-start)
	for r := start; r < end; r++ {
		var rec [recordSize]uint32
		copy(rec[:], buf[r*recordSize:])
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i][fieldGeneratedColumn] < records[j][fieldGeneratedColumn]
	})
	for i, rec := range records {
		copy(buf[(start+i)*recordSize:], rec[:])
	}
}

func lineSorted(buf []uint32, start, end int) bool {
	for r := start + 1; r < end; r++ {
		if buf[r*recordSize+fieldGeneratedColumn] < buf[(r-1)*recordSize+fieldGeneratedColumn] {
			return false
		}
	}
	return true
}
