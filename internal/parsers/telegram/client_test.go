package telegram

import (
	"testing"

	"github.com/gotd/td/tg"

	"feedbot/internal/domain/post"
)

func TestFileRefRoundTrips(t *testing.T) {
	ref := []byte{0x00, 0xab, 0xff, 0x10}
	encoded := encodeFileRef(ref)
	decoded := decodeFileRef(encoded)
	if string(decoded) != string(ref) {
		t.Fatalf("round trip mismatch: got %x, want %x", decoded, ref)
	}
}

func TestBoolString(t *testing.T) {
	if boolString(true) != "1" {
		t.Errorf("boolString(true) should be \"1\"")
	}
	if boolString(false) != "" {
		t.Errorf("boolString(false) should be empty")
	}
}

func TestRawIntID(t *testing.T) {
	qp := post.QueuePost{RawContent: map[string]string{"_raw_id": "42"}}
	if got := rawIntID(qp); got != 42 {
		t.Errorf("rawIntID = %d, want 42", got)
	}
}

func TestMessagesFromResponseUnwrapsKnownShapes(t *testing.T) {
	msg := &tg.Message{ID: 7, Message: "hello"}
	resp := &tg.MessagesMessages{Messages: []tg.MessageClass{msg}}
	out, err := messagesFromResponse(resp)
	if err != nil {
		t.Fatalf("messagesFromResponse: %v", err)
	}
	if len(out) != 1 || out[0].ID != 7 {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestMediaReferenceEncodesPhotoAndDocument(t *testing.T) {
	photo := &tg.MessageMediaPhoto{Photo: &tg.Photo{ID: 1, AccessHash: 2, FileReference: []byte{0x01}}}
	ref, mime := mediaReference(photo)
	if ref == "" || mime != "image/jpeg" {
		t.Fatalf("unexpected photo reference: %q %q", ref, mime)
	}

	doc := &tg.MessageMediaDocument{Document: &tg.Document{ID: 3, AccessHash: 4, MimeType: "video/mp4"}}
	ref, mime = mediaReference(doc)
	if ref == "" || mime != "video/mp4" {
		t.Fatalf("unexpected document reference: %q %q", ref, mime)
	}
}
