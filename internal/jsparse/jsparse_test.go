package jsparse

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_DefaultExports(t *testing.T) {
	tests := []struct {
		name string
		path string
		src  string
		want int
	}{
		{
			name: "default function with jsx",
			path: "src/web/Input.jsx",
			src:  "export default function Input(props) {\n  return <input value={props.value} />\n}\n",
			want: 1,
		},
		{
			name: "default identifier",
			path: "src/web/Label.js",
			src:  "const Label = () => null;\nexport default Label;\n",
			want: 1,
		},
		{
			name: "named exports only",
			path: "src/web/Label.js",
			src:  "export const Label = () => null;\nexport function helper() {}\n",
			want: 0,
		},
		{
			name: "no exports",
			path: "src/web/Empty.js",
			src:  "const x = 1;\n",
			want: 0,
		},
		{
			name: "typescript",
			path: "src/web/Slider.ts",
			src:  "interface Props { max: number }\nconst Slider = (p: Props): number => p.max;\nexport default Slider;\n",
			want: 1,
		},
		{
			name: "tsx",
			path: "src/web/Picker/index.tsx",
			src:  "export default function Picker(): JSX.Element {\n  return <div />\n}\n",
			want: 1,
		},
	}

	p := New()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, err := p.Parse(context.Background(), tt.path, []byte(tt.src))
			require.NoError(t, err)
			assert.Len(t, mod.DefaultExports, tt.want)
			assert.Equal(t, tt.path, mod.Path)
		})
	}
}

func TestParse_DefaultExportPosition(t *testing.T) {
	mod, err := New().Parse(context.Background(), "A.js", []byte("const A = 1;\nexport default A;\n"))
	require.NoError(t, err)
	require.Len(t, mod.DefaultExports, 1)
	assert.Equal(t, Position{Line: 2, Column: 1}, mod.DefaultExports[0])
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := New().Parse(context.Background(), "src/web/Broken.jsx", []byte("export default function (\n"))
	require.Error(t, err)

	var se *SyntaxError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "src/web/Broken.jsx", se.Path)
	assert.GreaterOrEqual(t, se.Line, 1)
	assert.Contains(t, se.Error(), "src/web/Broken.jsx:")
}

func TestTruncate_KeepsRunesIntact(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 40))

	label := "<label>Größe für Übergröße ändern – ✓ bestätigen</label>"
	got := truncate(label, maxSnippetRunes)

	assert.True(t, utf8.ValidString(got), "truncated snippet must be valid UTF-8: %q", got)
	assert.Equal(t, maxSnippetRunes+1, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "…"))
}
