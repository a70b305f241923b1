package handlers

import (
	"testing"

	"github.com/go-telegram/bot/models"

	"adcaster/internal/database"
)

func TestExtractContent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		msg        *models.Message
		kind       database.Kind
		wantBody   string
		wantFileID string
		wantOK     bool
	}{
		{
			name:     "text",
			msg:      &models.Message{Text: "buy now"},
			kind:     database.KindText,
			wantBody: "buy now",
			wantOK:   true,
		},
		{
			name:   "text empty",
			msg:    &models.Message{Text: "   "},
			kind:   database.KindText,
			wantOK: false,
		},
		{
			name: "photo picks largest rendition",
			msg: &models.Message{
				Caption: "caption",
				Photo: []models.PhotoSize{
					{FileID: "small"},
					{FileID: "large"},
				},
			},
			kind:       database.KindPhoto,
			wantBody:   "caption",
			wantFileID: "large",
			wantOK:     true,
		},
		{
			name:   "photo missing",
			msg:    &models.Message{Text: "not a photo"},
			kind:   database.KindPhoto,
			wantOK: false,
		},
		{
			name:       "video",
			msg:        &models.Message{Video: &models.Video{FileID: "vid1"}},
			kind:       database.KindVideo,
			wantFileID: "vid1",
			wantOK:     true,
		},
		{
			name:       "document with caption",
			msg:        &models.Message{Caption: "specs", Document: &models.Document{FileID: "doc1"}},
			kind:       database.KindDocument,
			wantBody:   "specs",
			wantFileID: "doc1",
			wantOK:     true,
		},
		{
			name:   "document missing",
			msg:    &models.Message{},
			kind:   database.KindDocument,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			body, fileID, ok := extractContent(tt.msg, tt.kind)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if body != tt.wantBody || fileID != tt.wantFileID {
				t.Fatalf("got (%q, %q), want (%q, %q)", body, fileID, tt.wantBody, tt.wantFileID)
			}
		})
	}
}
