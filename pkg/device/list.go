package device

import (
	"context"
	"fmt"
)

// ListAll scans the whole table, following the storage cursor until it is
// exhausted. Items are returned in the order the pages were read.
func ListAll(ctx context.Context, s Store, pageSize int) ([]Device, error) {
	devices := []Device{}
	cursor := ""
	for {
		page, err := s.Scan(ctx, cursor, pageSize)
		if err != nil {
			return nil, fmt.Errorf("scan devices: %w", err)
		}
		devices = append(devices, page.Items...)

		if page.Next == "" {
			return devices, nil
		}
		cursor = page.Next
	}
}
