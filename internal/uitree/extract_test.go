package uitree

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/mobilepilot/api/schemas"
	"pgregory.net/rapid"
)

const settingsDump = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <node index="0" class="android.widget.FrameLayout" bounds="[0,0][1080,2400]" clickable="false">
    <node index="0" resource-id="com.android.settings:id/search" class="android.widget.Button" content-desc="Search settings" clickable="true" bounds="[40,120][1040,240]">
      <node index="0" class="android.widget.TextView" text="Search settings" clickable="false" bounds="[60,140][1020,220]" />
    </node>
    <node index="1" resource-id="com.android.settings:id/wifi" class="android.widget.LinearLayout" clickable="true" bounds="[0,300][1080,460]">
      <node index="0" class="android.widget.Switch" checkable="true" bounds="[900,340][1040,420]" />
    </node>
    <node index="2" class="android.widget.EditText" text="" bounds="[40,500][1040,600]" />
    <node index="3" class="android.widget.ScrollView" scrollable="true" bounds="[0,650][1080,2400]" />
  </node>
</hierarchy>`

func TestExtract(t *testing.T) {
	elems, err := Extract([]byte(settingsDump), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, elems, 5)

	for i, e := range elems {
		assert.Equal(t, i+1, e.Index, "indices are 1-based positions")
		assert.NotEmpty(t, e.UID)
	}

	search := elems[0]
	assert.Equal(t, schemas.BoundingBox{X1: 40, Y1: 120, X2: 1040, Y2: 240}, search.Box)
	assert.Equal(t, "com.android.settings:id/search", search.ResourceID)
	assert.True(t, search.Traits.Has(schemas.TraitClickable|schemas.TraitLabeled))

	assert.Equal(t, "com.android.settings:id/wifi", elems[1].ResourceID)
	assert.True(t, elems[2].Traits.Has(schemas.TraitCheckable))
	assert.True(t, elems[3].Traits.Has(schemas.TraitEditable))
	assert.True(t, elems[4].Traits.Has(schemas.TraitScrollable))
}

func TestExtractEmpty(t *testing.T) {
	for name, in := range map[string]string{
		"nothing":        "",
		"whitespace":     " \n\t",
		"no interactive": `<hierarchy><node class="android.view.View" bounds="[0,0][10,10]"/></hierarchy>`,
		"bare root":      `<hierarchy/>`,
	} {
		t.Run(name, func(t *testing.T) {
			elems, err := Extract([]byte(in), DefaultOptions())
			require.NoError(t, err)
			assert.NotNil(t, elems)
			assert.Empty(t, elems)
		})
	}
}

func TestExtractDeduplication(t *testing.T) {
	t.Run("identical boxes collapse and merge traits", func(t *testing.T) {
		dump := `<hierarchy>
  <node clickable="true" bounds="[100,100][300,200]" text="Send"/>
  <node long-clickable="true" bounds="[100,100][300,200]"/>
</hierarchy>`
		elems, err := Extract([]byte(dump), Options{})
		require.NoError(t, err)
		require.Len(t, elems, 1)
		assert.Equal(t, "Send", elems[0].Text)
		assert.True(t, elems[0].Traits.Has(schemas.TraitClickable|schemas.TraitLongClickable))
	})

	t.Run("nested within tolerance keeps the outer box", func(t *testing.T) {
		dump := `<hierarchy>
  <node clickable="true" bounds="[100,100][300,200]">
    <node clickable="true" bounds="[105,104][295,198]" text="OK"/>
  </node>
</hierarchy>`
		elems, err := Extract([]byte(dump), Options{ContainmentTolerance: 10})
		require.NoError(t, err)
		require.Len(t, elems, 1)
		assert.Equal(t, schemas.BoundingBox{X1: 100, Y1: 100, X2: 300, Y2: 200}, elems[0].Box)
		assert.Equal(t, "OK", elems[0].Text)
	})

	t.Run("nested beyond tolerance stays separate", func(t *testing.T) {
		dump := `<hierarchy>
  <node clickable="true" bounds="[0,0][1000,1000]">
    <node clickable="true" bounds="[100,100][300,200]"/>
  </node>
</hierarchy>`
		elems, err := Extract([]byte(dump), Options{ContainmentTolerance: 10})
		require.NoError(t, err)
		assert.Len(t, elems, 2)
	})

	t.Run("close centres collapse", func(t *testing.T) {
		dump := `<hierarchy>
  <node clickable="true" bounds="[0,0][100,100]"/>
  <node clickable="true" bounds="[20,10][120,110]"/>
  <node clickable="true" bounds="[500,500][600,600]"/>
</hierarchy>`
		elems, err := Extract([]byte(dump), Options{MinCenterDistance: 30})
		require.NoError(t, err)
		require.Len(t, elems, 2)
		assert.Equal(t, 0, elems[0].Box.X1)
		assert.Equal(t, 2, elems[1].Index)

		elems, err = Extract([]byte(dump), Options{})
		require.NoError(t, err)
		assert.Len(t, elems, 3, "zero distance disables the centre check")
	})
}

func TestExtractGeometryFilters(t *testing.T) {
	dump := `<hierarchy>
  <node clickable="true" bounds="[0,0][0,50]"/>
  <node clickable="true" bounds="[-200,-200][-10,-10]"/>
  <node clickable="true" bounds="[1000,100][1200,200]"/>
  <node clickable="true"/>
</hierarchy>`

	elems, err := Extract([]byte(dump), Options{})
	require.NoError(t, err)
	require.Len(t, elems, 1, "zero-area and off-screen nodes are dropped; nodes without bounds are skipped")

	elems, err = Extract([]byte(dump), Options{Viewport: schemas.BoundingBox{X2: 1080, Y2: 2400}})
	require.NoError(t, err)
	require.Len(t, elems, 1)
	assert.Equal(t, schemas.BoundingBox{X1: 1000, Y1: 100, X2: 1080, Y2: 200}, elems[0].Box, "boxes are clipped to the viewport")
}

func TestExtractErrors(t *testing.T) {
	cases := map[string]string{
		"malformed xml":    `<hierarchy><node bounds="[0,0][1,1]">`,
		"not xml":          `{"hierarchy": []}`,
		"no root":          `<?xml version="1.0"?>`,
		"malformed bounds": `<hierarchy><node clickable="true" bounds="0,0,10,10"/></hierarchy>`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			elems, err := Extract([]byte(in), DefaultOptions())
			require.Error(t, err)
			assert.Nil(t, elems)

			var spe *SnapshotParseError
			assert.True(t, errors.As(err, &spe))
			assert.ErrorIs(t, err, ErrSnapshotParse)
		})
	}

	_, err := Extract([]byte(`<hierarchy><node clickable="true" bounds="[a,0][1,1]"/></hierarchy>`), Options{})
	assert.Contains(t, err.Error(), "/hierarchy/node")
}

func TestExtractFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xml.xml")
	require.NoError(t, os.WriteFile(path, []byte(settingsDump), 0o644))

	fromFile, err := ExtractFile(path, DefaultOptions())
	require.NoError(t, err)
	fromBytes, err := Extract([]byte(settingsDump), DefaultOptions())
	require.NoError(t, err)
	if diff := cmp.Diff(fromBytes, fromFile); diff != "" {
		t.Errorf("ExtractFile mismatch (-want +got):\n%s", diff)
	}

	_, err = ExtractFile(filepath.Join(t.TempDir(), "missing.xml"), DefaultOptions())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSnapshotParse)
}

// genDump draws a random hierarchy of up to depth levels.
func genDump(rt *rapid.T) string {
	var b strings.Builder
	b.WriteString("<hierarchy>")
	var node func(depth int)
	node = func(depth int) {
		x1 := rapid.IntRange(0, 1000).Draw(rt, "x1")
		y1 := rapid.IntRange(0, 2000).Draw(rt, "y1")
		w := rapid.IntRange(0, 400).Draw(rt, "w")
		h := rapid.IntRange(0, 400).Draw(rt, "h")
		clickable := rapid.Bool().Draw(rt, "clickable")
		fmt.Fprintf(&b, `<node clickable="%t" bounds="[%d,%d][%d,%d]">`, clickable, x1, y1, x1+w, y1+h)
		if depth > 0 {
			for i := rapid.IntRange(0, 3).Draw(rt, "children"); i > 0; i-- {
				node(depth - 1)
			}
		}
		b.WriteString("</node>")
	}
	for i := rapid.IntRange(0, 4).Draw(rt, "roots"); i > 0; i-- {
		node(2)
	}
	b.WriteString("</hierarchy>")
	return b.String()
}

func TestExtractProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dump := genDump(rt)
		opts := Options{
			ContainmentTolerance: rapid.IntRange(0, 20).Draw(rt, "tolerance"),
			MinCenterDistance:    rapid.IntRange(0, 50).Draw(rt, "distance"),
		}

		elems, err := Extract([]byte(dump), opts)
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}

		seen := make(map[schemas.BoundingBox]bool)
		for i, e := range elems {
			if e.Index != i+1 {
				rt.Fatalf("element %d has index %d", i, e.Index)
			}
			if !e.Box.Valid() {
				rt.Fatalf("element %d has degenerate box %s", e.Index, e.Box)
			}
			if seen[e.Box] {
				rt.Fatalf("box %s appears twice", e.Box)
			}
			seen[e.Box] = true

			if opts.MinCenterDistance > 0 {
				for _, other := range elems[:i] {
					a, b := e.Center(), other.Center()
					if math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y)) <= float64(opts.MinCenterDistance) {
						rt.Fatalf("elements %d and %d are closer than %d", other.Index, e.Index, opts.MinCenterDistance)
					}
				}
			}
		}

		again, err := Extract([]byte(dump), opts)
		if err != nil || !cmp.Equal(elems, again) {
			rt.Fatalf("extraction is not deterministic")
		}
	})
}
