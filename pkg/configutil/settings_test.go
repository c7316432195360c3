package configutil

import "testing"

func TestDecodeSettingsNormalizesKeys(t *testing.T) {
	var out struct {
		BlockSize   int    `mapstructure:"block_size"`
		DeviceName  string `mapstructure:"device_name"`
		SampleRate  int    `mapstructure:"sample_rate"`
		ExtraIgnore string `mapstructure:"extra"`
	}
	in := map[string]any{
		"blockSize":   "4096",
		"device-name": "default",
		"SAMPLE_RATE": 24000,
	}
	if err := DecodeSettings(in, &out); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if out.BlockSize != 4096 || out.DeviceName != "default" || out.SampleRate != 24000 {
		t.Fatalf("unexpected decode result: %+v", out)
	}
}

func TestValidateSettings(t *testing.T) {
	schema := Schema{Required: []string{"base_url"}, Optional: []string{"api_token"}}

	if err := ValidateSettings(map[string]any{"base_url": "http://x", "api_token": "t"}, schema); err != nil {
		t.Fatalf("expected valid settings, got %v", err)
	}
	if err := ValidateSettings(map[string]any{"api_token": "t"}, schema); err == nil {
		t.Fatalf("expected missing base_url error")
	}
	if err := ValidateSettings(map[string]any{"base_url": "x", "bogus": 1}, schema); err == nil {
		t.Fatalf("expected unknown key error")
	}
}
