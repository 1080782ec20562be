package schema

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// WriteJSONL writes one self-describing JSON object per chunk, one per line,
// in the order given.
func WriteJSONL(w io.Writer, chunks []*Chunk) error {
	bw := bufio.NewWriter(w)
	for _, c := range chunks {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal chunk %s: %w", c.ID, err)
		}
		if _, err := bw.Write(data); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteGlossaryJSON writes the glossary as a single indented JSON document.
// Map keys marshal in sorted order, so output is deterministic.
func WriteGlossaryJSON(w io.Writer, g Glossary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(g)
}
