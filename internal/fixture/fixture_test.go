package fixture

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/sdfixture/internal/domain"
)

// stubParser 记录 sidecar 标记，并按内容返回结果 / 错误 / panic。
type stubParser struct {
	sidecar []bool
}

func (s *stubParser) Parse(r io.Reader, sidecar bool) (domain.ImageData, error) {
	s.sidecar = append(s.sidecar, sidecar)
	b, err := io.ReadAll(r)
	if err != nil {
		return domain.ImageData{}, err
	}
	switch strings.TrimSpace(string(b)) {
	case "boom":
		return domain.ImageData{}, errors.New("cannot identify image file")
	case "panic":
		panic("parser exploded")
	}
	return domain.ImageData{
		Status:   domain.StatusReadSuccess,
		Tool:     "A1111 webUI",
		Width:    "512",
		Height:   "abc",
		Positive: string(b),
	}, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestExtract_MapsDefaultsAndCoercion(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "a.txt", "猫耳")
	sp := &stubParser{}

	res := Extract(sp, p)
	require.True(t, res.OK())
	assert.Equal(t, []bool{true}, sp.sidecar)

	fx := res.Fixture
	assert.Equal(t, p, fx.Source)
	assert.Equal(t, "猫耳", fx.Positive)
	require.NotNil(t, fx.Width)
	assert.Equal(t, 512, *fx.Width)
	assert.Nil(t, fx.Height, "无法转换的高度应为 null")
	assert.NotNil(t, fx.PositiveSDXL)
	assert.NotNil(t, fx.NegativeSDXL)
	assert.NotNil(t, fx.Parameter)
}

func TestExtract_SidecarModeByExtension(t *testing.T) {
	dir := t.TempDir()
	sp := &stubParser{}
	Extract(sp, writeFile(t, dir, "a.TXT", "x"))
	Extract(sp, writeFile(t, dir, "b.png", "x"))
	assert.Equal(t, []bool{true, false}, sp.sidecar)
}

func TestExtract_ParserErrorAndPanicBecomeFailures(t *testing.T) {
	dir := t.TempDir()

	res := ExtractAs(&stubParser{}, writeFile(t, dir, "bad.png", "boom"), "in/bad.png")
	require.False(t, res.OK())
	assert.Nil(t, res.Fixture)
	assert.Equal(t, domain.FailureEntry{Source: "in/bad.png", Message: "EXCEPTION: cannot identify image file"}, *res.Failure)

	res = Extract(&stubParser{}, writeFile(t, dir, "p.png", "panic"))
	require.False(t, res.OK())
	assert.Equal(t, "EXCEPTION: panic: parser exploded", res.Failure.Message)

	res = Extract(&stubParser{}, filepath.Join(dir, "missing.png"))
	require.False(t, res.OK())
	assert.True(t, strings.HasPrefix(res.Failure.Message, FailurePrefix))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "my_cat.png.fixture.json", FileName("/in/sub dir/my cat.png"))
	assert.Equal(t, "a.txt.fixture.json", FileName("a.txt"))
}

func TestEncode_SortedKeysCompactAndPretty(t *testing.T) {
	w := 512
	fx := FromImageData(domain.ImageData{
		Status:    domain.StatusReadSuccess,
		Positive:  "少女 <masterpiece> & more",
		Parameter: map[string]string{"steps": "20", "cfg": "7"},
		Width:     "512",
	}, "in/a.png")
	require.Equal(t, &w, fx.Width)

	compact, err := Encode(fx, false)
	require.NoError(t, err)
	pretty, err := Encode(fx, true)
	require.NoError(t, err)

	s := string(compact)
	assert.NotContains(t, s, "\n")
	assert.NotContains(t, s, ": ")
	assert.Contains(t, s, "少女 <masterpiece> & more", "非 ASCII 与 <>& 必须原样输出")
	assert.Contains(t, s, `"parameter":{"cfg":"7","steps":"20"}`)
	assert.True(t, strings.HasPrefix(s, `{"format":"","height":null,"is_sdxl":false,`))

	assert.Contains(t, string(pretty), "\n  \"format\": \"\",")
	assert.False(t, strings.HasSuffix(string(pretty), "\n"))
	assert.NotEqual(t, compact, pretty)

	var a, b map[string]any
	require.NoError(t, json.Unmarshal(compact, &a))
	require.NoError(t, json.Unmarshal(pretty, &b))
	assert.Equal(t, a, b, "两种模式必须 JSON 等价")

	// 顶层 key 顺序与 FixtureFields 一致
	keys := make([]string, 0, len(a))
	dec := json.NewDecoder(strings.NewReader(s))
	_, _ = dec.Token()
	for dec.More() {
		tok, err := dec.Token()
		require.NoError(t, err)
		keys = append(keys, tok.(string))
		var skip json.RawMessage
		require.NoError(t, dec.Decode(&skip))
	}
	assert.Equal(t, domain.FixtureFields, keys)
}

func TestEncodeFailures(t *testing.T) {
	b, err := EncodeFailures([]domain.FailureEntry{{Source: "a/图.png", Message: "EXCEPTION: x"}})
	require.NoError(t, err)
	assert.Equal(t, "[\n  [\n    \"a/图.png\",\n    \"EXCEPTION: x\"\n  ]\n]", string(b))

	b, err = EncodeFailures(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))
}
