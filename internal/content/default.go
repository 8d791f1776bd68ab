package content

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed dataset
var dataset embed.FS

// Default loads the embedded títulos de crédito dataset.
func Default() (*Content, error) {
	sub, err := fs.Sub(dataset, "dataset")
	if err != nil {
		return nil, fmt.Errorf("opening embedded dataset: %w", err)
	}
	return Load(sub)
}
