package wardrobe

import (
	"context"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Table renders the wardrobe as text: attributes as rows, instances as
// columns (active first). Inherited cells carry a trailing "*"; attributes
// with no value anywhere render empty.
func (w *Wardrobe) Table(ctx context.Context) (string, error) {
	instances, err := w.Instances(ctx)
	if err != nil {
		return "", err
	}
	attrs, err := w.Attrs(ctx)
	if err != nil {
		return "", err
	}

	overrides := make(map[string]map[string][]byte, len(instances))
	for _, instance := range instances {
		stored, err := w.engine.HGetAll(ctx, w.instanceKey(instance))
		if err != nil {
			return "", err
		}
		overrides[instance] = stored
	}
	defaults := overrides[DefaultInstance]

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)

	header := table.Row{"attribute"}
	for _, instance := range instances {
		header = append(header, instance)
	}
	tw.AppendHeader(header)

	for _, attr := range attrs {
		row := table.Row{attr}
		for _, instance := range instances {
			if value, ok := overrides[instance][attr]; ok {
				row = append(row, string(value))
				continue
			}
			if value, ok := defaults[attr]; ok && instance != DefaultInstance {
				row = append(row, string(value)+" *")
				continue
			}
			row = append(row, "")
		}
		tw.AppendRow(row)
	}
	return tw.Render(), nil
}
