package chunker

import (
	"strings"
	"testing"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/schema"
)

func TestTextBuilder_CrossPageAccumulation(t *testing.T) {
	sec := section("6.6", "Data transfer mode", 30, 45)
	b := NewTextBuilder(DefaultConfig(), testMeta())

	feeds := []struct {
		page int
		text string
	}{
		{30, "The device enters data transfer mode after initialization."},
		{30, "Commands are issued on the CMD line."},
		{31, "Responses arrive within the specified timeout."},
	}
	for _, f := range feeds {
		if out := b.Feed(Context{Section: sec, Page: f.page}, textBlock(f.text)); len(out) != 0 {
			t.Fatalf("expected no flush at page %d, got %d chunks", f.page, len(out))
		}
	}

	chunks := b.Flush()
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.PageStart != 30 || c.PageEnd != 31 {
		t.Errorf("expected page range 30-31, got %d-%d", c.PageStart, c.PageEnd)
	}
	if c.ContentType != schema.Text {
		t.Errorf("expected text chunk, got %q", c.ContentType)
	}
	if !strings.HasPrefix(c.Text, "[eMMC 5.1 | 6.6 Data transfer mode | Page 30]\n") {
		t.Errorf("unexpected context prefix in %q", c.Text)
	}
	if !strings.Contains(c.RawText, "CMD line") || !strings.Contains(c.RawText, "timeout") {
		t.Errorf("expected all fed blocks in the chunk, got %q", c.RawText)
	}
}

func TestTextBuilder_SectionChangeFlushes(t *testing.T) {
	sec66 := section("6.6", "Data transfer mode", 30, 39)
	sec67 := section("6.7", "Interrupt mode", 40, 44)
	b := NewTextBuilder(DefaultConfig(), testMeta())

	b.Feed(Context{Section: sec66, Page: 39}, textBlock("Transfer mode prose paragraph."))
	out := b.Feed(Context{Section: sec67, Page: 40}, textBlock("Interrupt mode prose paragraph."))

	if len(out) != 1 {
		t.Fatalf("expected section change to flush 1 chunk, got %d", len(out))
	}
	if out[0].SectionTitle != "Data transfer mode" {
		t.Errorf("expected flushed chunk from 6.6, got %q", out[0].SectionTitle)
	}

	rest := b.Flush()
	if len(rest) != 1 || rest[0].SectionTitle != "Interrupt mode" {
		t.Fatalf("expected remaining chunk from 6.7, got %+v", rest)
	}
}

func TestTextBuilder_TypeSwitchFlushes(t *testing.T) {
	sec := section("7.4", "Detailed command description", 150, 170)
	ctx := Context{Section: sec, Page: 151}
	b := NewTextBuilder(DefaultConfig(), testMeta())

	b.Feed(ctx, textBlock("Prose describing the command flow in detail."))
	out := b.Feed(ctx, registerBlock("PARTITION_CONFIG [2:0]\n0x0: no access to boot partition"))

	if len(out) != 1 {
		t.Fatalf("expected type switch to flush 1 chunk, got %d", len(out))
	}
	if out[0].ContentType != schema.Text {
		t.Errorf("expected flushed prose chunk, got %q", out[0].ContentType)
	}

	rest := b.Flush()
	if len(rest) != 1 || rest[0].ContentType != schema.Register {
		t.Fatalf("expected buffered register chunk, got %+v", rest)
	}
}

func TestTextBuilder_HeadingStartsNewChunk(t *testing.T) {
	sec := section("6.6", "Data transfer mode", 30, 45)
	ctx := Context{Section: sec, Page: 30}
	b := NewTextBuilder(DefaultConfig(), testMeta())

	b.Feed(ctx, textBlock("6.6 Data transfer mode\nAfter initialization the device enters transfer state."))
	out := b.Feed(ctx, textBlock("6.6.1 Command sets\nEach command set maps to a bit in EXT_CSD."))

	if len(out) != 1 {
		t.Fatalf("expected heading to flush 1 chunk, got %d", len(out))
	}
	if out[0].HeadingLevel != 2 {
		t.Errorf("expected flushed chunk at heading level 2, got %d", out[0].HeadingLevel)
	}

	rest := b.Flush()
	if len(rest) != 1 {
		t.Fatalf("expected 1 remaining chunk, got %d", len(rest))
	}
	if rest[0].HeadingLevel != 3 {
		t.Errorf("expected new chunk at heading level 3, got %d", rest[0].HeadingLevel)
	}
}

func TestTextBuilder_HighWaterFlushWaitsForBoundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlushTokens = 10
	sec := section("6.6", "Data transfer mode", 30, 45)
	ctx := Context{Section: sec, Page: 30}
	b := NewTextBuilder(cfg, testMeta())

	b.Feed(ctx, textBlock("The device supports several operating modes that differ in bus width and timing."))

	// Over the high-water mark, but a lowercase continuation must not
	// be split from its sentence.
	if out := b.Feed(ctx, textBlock("and the selected mode persists until the next power cycle.")); len(out) != 0 {
		t.Fatalf("expected continuation to stay buffered, got %d chunks", len(out))
	}

	out := b.Feed(ctx, textBlock("Mode selection uses the SWITCH command."))
	if len(out) != 1 {
		t.Fatalf("expected flush at sentence boundary, got %d chunks", len(out))
	}
	if !strings.Contains(out[0].RawText, "power cycle") {
		t.Errorf("expected continuation inside flushed chunk, got %q", out[0].RawText)
	}
	if strings.Contains(out[0].RawText, "SWITCH") {
		t.Errorf("boundary block leaked into flushed chunk: %q", out[0].RawText)
	}
}

func TestTextBuilder_RegisterIgnoresHighWater(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlushTokens = 5
	sec := section("7.3", "CSD register", 160, 168)
	ctx := Context{Section: sec, Page: 160}
	b := NewTextBuilder(cfg, testMeta())

	feeds := []string{
		"CSD register structure version 4.41 encoding",
		"Bits [125:122] define the structure field.",
		"Values above two are reserved for future use.",
	}
	for _, f := range feeds {
		if out := b.Feed(ctx, registerBlock(f)); len(out) != 0 {
			t.Fatalf("register buffer flushed early on %q", f)
		}
	}

	chunks := b.Flush()
	if len(chunks) != 1 {
		t.Fatalf("expected 1 register chunk, got %d", len(chunks))
	}
	if chunks[0].ContentType != schema.Register {
		t.Errorf("expected register chunk, got %q", chunks[0].ContentType)
	}
	for _, f := range feeds {
		if !strings.Contains(chunks[0].RawText, f) {
			t.Errorf("expected %q in register chunk", f)
		}
	}
}

func TestTextBuilder_RegisterSplitsAtBitBoundaries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RegisterCeiling = 20
	sec := section("7.4", "EXT_CSD register", 170, 200)
	ctx := Context{Section: sec, Page: 171}
	b := NewTextBuilder(cfg, testMeta())

	b.Feed(ctx, registerBlock("EXT_CSD access modes and fields\n"+
		"[7:4] RESERVED reads as zero always\n"+
		"[3:0] CMD_SET selects the active command set"))

	chunks := b.Flush()
	if len(chunks) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.ContentType != schema.Register {
			t.Errorf("fragment %d: expected register type, got %q", i, c.ContentType)
		}
		if !strings.HasPrefix(c.RawText, "EXT_CSD access modes and fields\n") {
			t.Errorf("fragment %d missing repeated header: %q", i, c.RawText)
		}
	}
	if !strings.Contains(chunks[0].RawText, "[7:4]") || strings.Contains(chunks[0].RawText, "[3:0]") {
		t.Errorf("unexpected first fragment split: %q", chunks[0].RawText)
	}
	if !strings.Contains(chunks[1].RawText, "[3:0]") {
		t.Errorf("expected second fragment to carry [3:0], got %q", chunks[1].RawText)
	}
}

func TestTextBuilder_RegisterWithoutBoundariesEmitsWhole(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RegisterCeiling = 5
	sec := section("7.1", "OCR register", 158, 159)
	ctx := Context{Section: sec, Page: 158}
	b := NewTextBuilder(cfg, testMeta())

	raw := "OCR register busy bit description text continues here with more detail words"
	b.Feed(ctx, registerBlock(raw))

	chunks := b.Flush()
	if len(chunks) != 1 {
		t.Fatalf("expected single chunk when no split boundary exists, got %d", len(chunks))
	}
	if chunks[0].RawText != raw {
		t.Errorf("expected register emitted whole, got %q", chunks[0].RawText)
	}
}

func TestTextBuilder_FlushOnEmptyBuffer(t *testing.T) {
	b := NewTextBuilder(DefaultConfig(), testMeta())
	if chunks := b.Flush(); len(chunks) != 0 {
		t.Fatalf("expected no chunks from empty buffer, got %d", len(chunks))
	}
}
