package complexity

import (
	"reflect"
	"strings"
	"testing"

	"github.com/campersurfer/Autopicker/internal/domain/chatmodel"
	"github.com/campersurfer/Autopicker/internal/domain/extraction"
)

func userMsg(content string) Message {
	return Message{Role: "user", Content: content}
}

func TestComputeTrivialRequest(t *testing.T) {
	score := Compute(Input{Messages: []Message{userMsg("2+2?")}})

	if score.Value > 10 {
		t.Errorf("trivial request scored %d, want <= 10", score.Value)
	}
	if !score.Required.Has(chatmodel.CapabilityText) {
		t.Error("text capability must always be required")
	}
	if len(score.Required) != 1 {
		t.Errorf("required = %v, want text only", score.Required.List())
	}
}

func TestComputeDeterministic(t *testing.T) {
	input := Input{
		Messages: []Message{userMsg(strings.Repeat("analyze this ", 200))},
		Files: []File{
			{SizeBytes: 500 * 1024, Extraction: &extraction.Extraction{Kind: extraction.KindTable, Text: "a,b\n1,2"}},
		},
		FastWindows: []int{16385},
	}

	first := Compute(input)
	second := Compute(input)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("same input produced different scores:\n%+v\n%+v", first, second)
	}
}

func TestComputeHintTagOrderStable(t *testing.T) {
	input := Input{
		Messages: []Message{userMsg("hello")},
		Hints: chatmodel.NewCapabilitySet(
			chatmodel.CapabilityVision,
			chatmodel.CapabilityAudio,
			chatmodel.CapabilityLongContext,
			chatmodel.CapabilityFunctionCalling,
		),
	}

	want := Compute(input).Tags
	for i := 0; i < 200; i++ {
		got := Compute(input).Tags
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("run %d tags = %v, want %v", i, got, want)
		}
	}
}

func TestComputeSignalWeights(t *testing.T) {
	tests := []struct {
		name  string
		input Input
		want  int
	}{
		{
			name:  "message chars floor division",
			input: Input{Messages: []Message{userMsg(strings.Repeat("x", 1600))}},
			want:  2,
		},
		{
			name:  "message points cap at 25",
			input: Input{Messages: []Message{userMsg(strings.Repeat("x", 800*40))}},
			want:  25,
		},
		{
			name:  "file count cap at 20",
			input: Input{Files: []File{{}, {}, {}, {}, {}, {}}},
			want:  20,
		},
		{
			name:  "file size points",
			input: Input{Files: []File{{SizeBytes: 1024 * 1024}}},
			want:  5 + 5, // one file + 5 size chunks of 200 KiB
		},
		{
			name: "image extraction",
			input: Input{Files: []File{{
				Extraction: &extraction.Extraction{Kind: extraction.KindImageCaption, Text: "image 640x480, png"},
			}}},
			want: 5 + 10,
		},
		{
			name: "audio transcript",
			input: Input{Files: []File{{
				Extraction: &extraction.Extraction{Kind: extraction.KindTranscript, Text: "hello"},
			}}},
			want: 5 + 15,
		},
		{
			name: "empty transcript adds no audio points",
			input: Input{Files: []File{{
				Extraction: &extraction.Extraction{Kind: extraction.KindTranscript, Text: ""},
			}}},
			want: 5,
		},
		{
			name:  "code fence",
			input: Input{Messages: []Message{userMsg("run this:\n```go\nfmt.Println()\n```")}},
			want:  5,
		},
		{
			name:  "capability hint",
			input: Input{Hints: chatmodel.NewCapabilitySet(chatmodel.CapabilityVision)},
			want:  10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compute(tt.input); got.Value != tt.want {
				t.Errorf("score = %d, want %d", got.Value, tt.want)
			}
		})
	}
}

func TestComputeSaturatesAt100(t *testing.T) {
	files := make([]File, 10)
	for i := range files {
		files[i] = File{SizeBytes: 5 * 1024 * 1024}
	}
	files[0].Extraction = &extraction.Extraction{Kind: extraction.KindImageCaption, Text: "img"}
	files[1].Extraction = &extraction.Extraction{Kind: extraction.KindTranscript, Text: "talk"}
	files[2].Extraction = &extraction.Extraction{Kind: extraction.KindTable, Text: "a,b"}

	input := Input{
		Messages: []Message{userMsg(strings.Repeat("```{}[];", 10000))},
		Files:    files,
		Hints:    chatmodel.NewCapabilitySet(chatmodel.CapabilityVision, chatmodel.CapabilityFunctionCalling),
	}

	score := Compute(input)
	if score.Value != 100 {
		t.Errorf("score = %d, want saturation at 100", score.Value)
	}
}

func TestComputeRequiredCapabilities(t *testing.T) {
	input := Input{
		Messages: []Message{userMsg("describe the image and the recording")},
		Files: []File{
			{Extraction: &extraction.Extraction{Kind: extraction.KindImageCaption, Text: "image 10x10, png"}},
			{Extraction: &extraction.Extraction{Kind: extraction.KindTranscript, Text: "spoken words"}},
		},
	}

	score := Compute(input)
	for _, want := range []chatmodel.Capability{chatmodel.CapabilityText, chatmodel.CapabilityVision, chatmodel.CapabilityAudio} {
		if !score.Required.Has(want) {
			t.Errorf("required missing %s", want)
		}
	}
}

func TestComputeLongContext(t *testing.T) {
	big := strings.Repeat("w", 4*1600) // ~1600 tokens

	score := Compute(Input{
		Messages:    []Message{userMsg(big)},
		FastWindows: []int{2048},
	})
	if !score.Required.Has(chatmodel.CapabilityLongContext) {
		t.Error("expected long-context requirement against a 2048 fast window")
	}

	score = Compute(Input{
		Messages:    []Message{userMsg(big)},
		FastWindows: []int{128000},
	})
	if score.Required.Has(chatmodel.CapabilityLongContext) {
		t.Error("long-context should not trigger under a 128k fast window")
	}
}

func TestComputePunctuationDensity(t *testing.T) {
	score := Compute(Input{Messages: []Message{userMsg("{}[]();;;===!!!???")}})
	if score.Value < 5 {
		t.Errorf("punctuation-dense input scored %d, want code-like bonus", score.Value)
	}

	foundTag := false
	for _, tag := range score.Tags {
		if tag == "code-like" {
			foundTag = true
		}
	}
	if !foundTag {
		t.Errorf("tags = %v, want code-like", score.Tags)
	}
}
