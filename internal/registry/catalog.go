package registry

import (
	"context"
	"fmt"

	"github.com/blackwell-systems/cratebot/internal/logger"
)

// PageSize is the number of crates requested per catalog page.
const PageSize = 100

// ResumePage returns the first catalog page that may contain crates not yet
// stored, given how many are stored already.
func ResumePage(count, pageSize int) int {
	if pageSize <= 0 || count <= 0 {
		return 1
	}
	return count/pageSize + 1
}

// FetchCatalog walks the catalog from startingPage until the registry returns
// an empty page and returns every crate seen. A page shorter than PageSize is
// the last one, so the empty page after it is never requested. A failed page
// aborts the walk.
func (c *Client) FetchCatalog(ctx context.Context, startingPage int) ([]Crate, error) {
	page := startingPage
	if page < 1 {
		page = 1
	}

	var crates []Crate
	for {
		c.log.Info("fetching crates", logger.Int("page", page))

		batch, err := c.ListPage(ctx, page, PageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch catalog page %d: %w", page, err)
		}
		if len(batch) == 0 {
			break
		}

		c.log.Debug("fetched crates", logger.Int("page", page), logger.Int("count", len(batch)))
		crates = append(crates, batch...)
		if len(batch) < PageSize {
			break
		}
		page++
	}

	return crates, nil
}

// Names extracts crate names in order.
func Names(crates []Crate) []string {
	names := make([]string, len(crates))
	for i, c := range crates {
		names[i] = c.Name
	}
	return names
}

// CrateURL returns the canonical crates.io page for name.
func CrateURL(name string) string {
	return DefaultBaseURL + "/crates/" + name
}
