package meta

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/sdfixture/internal/domain"
)

// 4:Checkpoint -> 10:LoRA -> 3:KSampler -> 8:VAEDecode -> 9:SaveImage
const comfyPrompt = `{
  "4": {"class_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": "sdxl.safetensors"}},
  "10": {"class_type": "LoraLoader", "inputs": {"model": ["4", 0], "clip": ["4", 1], "lora_name": "x.safetensors"}},
  "6": {"class_type": "CLIPTextEncode", "inputs": {"text": "a cute cat, best quality", "clip": ["10", 1]}},
  "7": {"class_type": "CLIPTextEncode", "inputs": {"text": "blurry, lowres", "clip": ["10", 1]}},
  "5": {"class_type": "EmptyLatentImage", "inputs": {"width": 512, "height": 768, "batch_size": 1}},
  "3": {"class_type": "KSampler", "inputs": {
    "seed": 123456789, "steps": 28, "cfg": 5.5, "sampler_name": "k_dpmpp_2m", "scheduler": "karras", "denoise": 1.0,
    "model": ["10", 0], "positive": ["6", 0], "negative": ["7", 0], "latent_image": ["5", 0]}},
  "8": {"class_type": "VAEDecode", "inputs": {"samples": ["3", 0], "vae": ["4", 2]}},
  "9": {"class_type": "SaveImage", "inputs": {"filename_prefix": "ComfyUI", "images": ["8", 0]}}
}`

func comfyMetadata(prompt, workflow string) *Metadata {
	md := &Metadata{Format: FormatPNG, Width: 512, Height: 768}
	md.setText("prompt", prompt)
	if workflow != "" {
		md.setText("workflow", workflow)
	}
	return md
}

func TestComfyUI_ModelChainAndEntries(t *testing.T) {
	md := comfyMetadata(comfyPrompt, `{"nodes":[]}`)
	require.True(t, ComfyUI{}.Match(md))

	res, err := ComfyUI{}.Parse(md)
	require.NoError(t, err)

	assert.Equal(t, ToolComfyUI, res.Tool)
	assert.Equal(t, "a cute cat, best quality", res.Positive)
	assert.Equal(t, "blurry, lowres", res.Negative)
	assert.False(t, res.IsSDXL)

	require.NotEmpty(t, res.Entries)
	assert.Equal(t, Entry{"Model", "sdxl.safetensors"}, res.Entries[0])
	assert.Equal(t, "Model: sdxl.safetensors, Steps: 28, Sampler: k_dpmpp_2m, CFG scale: 5.5, Seed: 123456789, Size: 512x768", res.setting())

	var detail map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.props()), &detail))
	assert.Equal(t, "sdxl.safetensors", detail["Model"])
	flow, ok := detail["flow"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "karras", flow["scheduler"])
	assert.NotContains(t, flow, "seed")

	assert.Contains(t, res.Raw, "a cute cat, best quality\nblurry, lowres\n{")
	assert.Contains(t, res.Raw, `{"nodes":[]}`)
}

func TestComfyUI_SDXLEncoders(t *testing.T) {
	prompt := `{
  "1": {"class_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": "base.safetensors"}},
  "2": {"class_type": "CLIPTextEncodeSDXL", "inputs": {"text_g": "a castle", "text_l": "a castle", "clip": ["1", 1]}},
  "3": {"class_type": "CLIPTextEncodeSDXL", "inputs": {"text_g": "ugly", "text_l": "deformed", "clip": ["1", 1]}},
  "4": {"class_type": "KSamplerAdvanced", "inputs": {"noise_seed": 42, "steps": 30, "cfg": 7, "sampler_name": "euler",
        "model": ["1", 0], "positive": ["2", 0], "negative": ["3", 0]}}
}`
	res, err := ComfyUI{}.Parse(comfyMetadata(prompt, ""))
	require.NoError(t, err)

	assert.True(t, res.IsSDXL)
	assert.Equal(t, "a castle", res.Positive)
	assert.Equal(t, "Clip G: ugly\nClip L: deformed", res.Negative)
	assert.Equal(t, map[string]string{"Clip G": "a castle", "Clip L": "a castle"}, res.PositiveSDXL)
	assert.Equal(t, map[string]string{"Clip G": "ugly", "Clip L": "deformed"}, res.NegativeSDXL)
	assert.Equal(t, "42", res.entry("Seed"))
	assert.Equal(t, "base.safetensors", res.entry("Model"))
}

func TestComfyUI_WorkflowModelFallback(t *testing.T) {
	prompt := `{
  "1": {"class_type": "CLIPTextEncode", "inputs": {"text": "p"}},
  "2": {"class_type": "KSampler", "inputs": {"seed": 1, "positive": ["1", 0]}}
}`
	workflow := `{"nodes":[{"type":"Loader","widgets_values":["models/a.ckpt"]}]}`
	res, err := ComfyUI{}.Parse(comfyMetadata(prompt, workflow))
	require.NoError(t, err)
	assert.Equal(t, "models/a.ckpt", res.entry("Model"))
	assert.Equal(t, "p", res.Positive)
}

func TestComfyUI_PicksLargestTraversal(t *testing.T) {
	// 终点 20 只访问自己；终点 9 访问完整链路。
	prompt := `{"20": {"class_type": "SaveImage", "inputs": {}},` + comfyPrompt[1:]
	res, err := ComfyUI{}.Parse(comfyMetadata(prompt, ""))
	require.NoError(t, err)
	assert.Equal(t, "a cute cat, best quality", res.Positive)
}

func TestComfyUI_Errors(t *testing.T) {
	res, err := ComfyUI{}.Parse(comfyMetadata("{not json", ""))
	require.Error(t, err)
	assert.Equal(t, domain.StatusComfyUIError, res.Status)
	assert.Equal(t, "{not json", res.Raw)

	res, err = ComfyUI{}.Parse(comfyMetadata(`{"1":{"class_type":"Note","inputs":{}}}`, ""))
	require.Error(t, err)
	assert.Equal(t, domain.StatusComfyUIError, res.Status)
}

func TestComfyUI_LinkCycleTerminates(t *testing.T) {
	prompt := `{
  "1": {"class_type": "StringConcat", "inputs": {"a": ["2", 0]}},
  "2": {"class_type": "StringConcat", "inputs": {"a": ["1", 0]}},
  "3": {"class_type": "KSampler", "inputs": {"positive": ["1", 0], "steps": 5}}
}`
	res, err := ComfyUI{}.Parse(comfyMetadata(prompt, ""))
	require.NoError(t, err)
	assert.Equal(t, "", res.Positive)
	assert.Equal(t, "5", res.entry("Steps"))
}

func TestMergeClip(t *testing.T) {
	assert.Equal(t, "a", mergeClip("a", "a"))
	assert.Equal(t, "a", mergeClip("a", ""))
	assert.Equal(t, "b", mergeClip("", "b"))
	assert.Equal(t, "Clip G: a\nClip L: b", mergeClip("a", "b"))
}
