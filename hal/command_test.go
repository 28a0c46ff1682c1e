package hal

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestStagesShaderStages(t *testing.T) {
	tests := []struct {
		name   string
		stages Stages
		want   gputypes.ShaderStages
	}{
		{"vertex", StageVertex, gputypes.ShaderStageVertex},
		{"fragment", StageFragment, gputypes.ShaderStageFragment},
		{"compute", StageCompute, gputypes.ShaderStageCompute},
		{"render", StageRender, gputypes.ShaderStageVertex | gputypes.ShaderStageFragment},
		{"blit drops", StageBlit, 0},
		{"host drops", StageHost, 0},
		{"mixed drops non-shader", StageCompute | StageBlit, gputypes.ShaderStageCompute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stages.ShaderStages(); got != tt.want {
				t.Errorf("ShaderStages() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStagesContains(t *testing.T) {
	s := StageVertex | StageFragment
	if !s.Contains(StageVertex) {
		t.Error("should contain vertex")
	}
	if s.Contains(StageCompute) {
		t.Error("should not contain compute")
	}
	if !StageNone.IsEmpty() {
		t.Error("StageNone should be empty")
	}
}

func TestResourceUseIsEmpty(t *testing.T) {
	var u ResourceUse
	if !u.IsEmpty() {
		t.Error("zero use should be empty")
	}
	if (UseRead | UseSample).IsEmpty() {
		t.Error("read|sample should not be empty")
	}
}
