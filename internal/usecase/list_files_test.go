package usecase

import (
	"context"
	"testing"

	"voicescribe/internal/domain"
	"voicescribe/internal/registry"
)

func TestListFilesStripsWords(t *testing.T) {
	reg := registry.New(testLogger())
	rec := addRecord(t, reg, "a", domain.FileUploaded)
	if _, err := reg.Update(rec.ID, func(r *domain.FileRecord) error {
		r.Segments = []domain.Segment{{
			Speaker: "发言人1", Text: "你好", EndTime: 1,
			Words: []domain.Word{{Text: "你好", Start: 0, End: 1}},
		}}
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	result := ListFiles{Registry: reg}.Execute(context.Background(), domain.FileFilter{})
	if len(result.Records) != 1 || result.Total != 1 {
		t.Fatalf("result = %+v", result)
	}
	seg := result.Records[0].Segments[0]
	if seg.Text != "你好" || seg.Words != nil {
		t.Fatalf("segment = %+v", seg)
	}
	if result.Statistics.Uploaded != 1 || result.Statistics.Total != 1 {
		t.Fatalf("statistics = %+v", result.Statistics)
	}
}
