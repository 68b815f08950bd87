package stats

import (
	"sort"
	"time"

	"whatsdata/internal/constants"
	"whatsdata/internal/store"
)

const largestFilesShown = 10

type SizeDistribution struct {
	Small  int `json:"small"`
	Medium int `json:"medium"`
	Large  int `json:"large"`
	XLarge int `json:"xlarge"`
}

type FileStats struct {
	TotalFiles       int              `json:"total_files"`
	TotalSize        int64            `json:"total_size"`
	FileTypes        map[string]int   `json:"file_types"`
	SizeDistribution SizeDistribution `json:"size_distribution"`
	ModifiedDates    map[string]int   `json:"modified_dates"`
	LargestFiles     []store.BlobMeta `json:"largest_files"`
}

// SizeBucket names the size class: small < 1KB <= medium < 100KB <= large < 1MB <= xlarge
func SizeBucket(size int64) string {
	switch {
	case size < constants.BytesPerKilobyte:
		return "small"
	case size < 100*constants.BytesPerKilobyte:
		return "medium"
	case size < constants.BytesPerMegabyte:
		return "large"
	default:
		return "xlarge"
	}
}

// Files aggregates blob metadata; modification days are keyed YYYY-MM-DD in loc
func Files(blobs []store.BlobMeta, loc *time.Location) FileStats {
	if loc == nil {
		loc = time.UTC
	}
	s := FileStats{
		TotalFiles:    len(blobs),
		FileTypes:     make(map[string]int),
		ModifiedDates: make(map[string]int),
	}

	for _, b := range blobs {
		s.TotalSize += b.Size
		s.FileTypes[string(b.Kind)]++
		switch SizeBucket(b.Size) {
		case "small":
			s.SizeDistribution.Small++
		case "medium":
			s.SizeDistribution.Medium++
		case "large":
			s.SizeDistribution.Large++
		default:
			s.SizeDistribution.XLarge++
		}
		s.ModifiedDates[b.Modified.In(loc).Format("2006-01-02")]++
	}

	largest := make([]store.BlobMeta, len(blobs))
	copy(largest, blobs)
	sort.SliceStable(largest, func(i, j int) bool { return largest[i].Size > largest[j].Size })
	if len(largest) > largestFilesShown {
		largest = largest[:largestFilesShown]
	}
	s.LargestFiles = largest
	return s
}
