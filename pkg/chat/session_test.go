package chat

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/chatvault/internal/store"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func newTestService(t *testing.T) (*Service, *store.SQLiteStore) {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, zerolog.Nop()), st
}

func TestStartAppendSave(t *testing.T) {
	svc, st := newTestService(t)

	sess := svc.Start("Panel sizing")
	sess.AppendUser("How many panels do I need for a 6kW system?")
	sess.AppendAssistant("About fifteen at 400W each.", WithThinking("assume 400W panels", 2.5))
	require.NoError(t, sess.Save())

	conv, err := st.LoadConversation(sess.ID())
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, "Panel sizing", conv.Title)

	messages, err := st.LoadMessages(sess.ID())
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, store.RoleUser, messages[0].Role)
	assert.Equal(t, store.RoleAssistant, messages[1].Role)
	require.NotNil(t, messages[1].Thinking)
	assert.Equal(t, "assume 400W panels", *messages[1].Thinking)
	require.NotNil(t, messages[1].ThinkingDurationSecs)
	assert.Equal(t, 2.5, *messages[1].ThinkingDurationSecs)
}

func TestAutoTitleFromFirstUserMessage(t *testing.T) {
	svc, st := newTestService(t)

	sess := svc.Start("")
	sess.AppendUser("how do I size solar panels for my roof")
	sess.AppendAssistant("Start from your usage.")
	require.NoError(t, sess.Save())

	conv, err := st.LoadConversation(sess.ID())
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.NotEmpty(t, conv.Title)
	assert.Contains(t, conv.Title, "solar")
}

func TestIncrementalTurnsStayOrderedAndStable(t *testing.T) {
	svc, st := newTestService(t)

	sess := svc.Start("turns")
	sess.AppendUser("first question")
	require.NoError(t, sess.Save())
	firstID := sess.Messages()[0].ID

	sess.AppendAssistant("first answer")
	sess.AppendUser("second question")
	require.NoError(t, sess.Save())

	messages, err := st.LoadMessages(sess.ID())
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, firstID, messages[0].ID)
	for i, m := range messages {
		assert.Equal(t, i, m.SortOrder)
	}
}

func TestResumeContinuesConversation(t *testing.T) {
	svc, st := newTestService(t)

	first := svc.Start("resumable")
	first.AppendUser("original question")
	first.AppendAssistant("original answer")
	require.NoError(t, first.Save())

	sess, err := svc.Resume(first.ID())
	require.NoError(t, err)
	assert.Equal(t, "resumable", sess.Title())
	require.Equal(t, 2, sess.Len())

	sess.AppendUser("follow-up")
	require.NoError(t, sess.Save())

	messages, err := st.LoadMessages(sess.ID())
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, first.Messages()[0].ID, messages[0].ID)
	assert.Equal(t, "follow-up", messages[2].Content)
}

func TestTruncateAndRegenerate(t *testing.T) {
	svc, st := newTestService(t)

	sess := svc.Start("retry")
	sess.AppendUser("q1")
	sess.AppendAssistant("bad answer")
	require.NoError(t, sess.Save())

	sess.Truncate(sess.Len() - 1)
	regenerated := sess.AppendAssistant("better answer")
	require.NoError(t, sess.Save())

	messages, err := st.LoadMessages(sess.ID())
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, regenerated.ID, messages[1].ID)
	assert.Equal(t, "better answer", messages[1].Content)
	for i, m := range messages {
		assert.Equal(t, i, m.SortOrder)
	}
}

func TestSaveSkipsExistingEditsButSaveFullRewrites(t *testing.T) {
	svc, st := newTestService(t)

	sess := svc.Start("edits")
	m := sess.AppendUser("original text")
	require.NoError(t, sess.Save())

	m.Content = "edited text"
	require.NoError(t, sess.Save())

	messages, err := st.LoadMessages(sess.ID())
	require.NoError(t, err)
	assert.Equal(t, "original text", messages[0].Content)

	require.NoError(t, sess.SaveFull())
	messages, err = st.LoadMessages(sess.ID())
	require.NoError(t, err)
	assert.Equal(t, "edited text", messages[0].Content)
}

func TestAttachClassifiesFromPayload(t *testing.T) {
	svc, _ := newTestService(t)

	sess := svc.Start("files")
	m := sess.AppendUser("see attached")

	img, err := sess.Attach(m.ID, "roof.png", pngBytes)
	require.NoError(t, err)
	assert.Equal(t, store.AttachmentTypeImage, img.Type)
	assert.Equal(t, "image/png", img.MimeType)

	txt, err := sess.Attach(m.ID, "notes.txt", []byte("plain text notes\n"))
	require.NoError(t, err)
	assert.Equal(t, store.AttachmentTypeTextFile, txt.Type)
	assert.Contains(t, txt.MimeType, "text/plain")

	pdf, err := sess.Attach(m.ID, "report.pdf", []byte("%PDF-1.4\n%fake"))
	require.NoError(t, err)
	assert.Equal(t, store.AttachmentTypeDocument, pdf.Type)

	assert.Equal(t, 0, img.SortOrder)
	assert.Equal(t, 1, txt.SortOrder)
	assert.Equal(t, 2, pdf.SortOrder)
}

func TestAttachRejectsEmptyAndUnknown(t *testing.T) {
	svc, _ := newTestService(t)

	sess := svc.Start("bad attach")
	m := sess.AppendUser("hello")

	_, err := sess.Attach(m.ID, "empty.bin", nil)
	assert.Error(t, err)

	_, err = sess.Attach("no-such-message", "roof.png", pngBytes)
	assert.Error(t, err)
}

func TestPlaceholderMaterializesOnLaterSave(t *testing.T) {
	svc, st := newTestService(t)

	sess := svc.Start("uploads")
	m := sess.AppendUser("uploading now")
	att, err := sess.AttachPlaceholder(m.ID, "scan.pdf", "application/pdf", store.AttachmentTypeDocument)
	require.NoError(t, err)
	require.NoError(t, sess.Save())

	stored, err := st.LoadAttachments(m.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)

	att.Data = []byte("%PDF-1.4 real bytes")
	require.NoError(t, sess.Save())

	stored, err = st.LoadAttachments(m.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	data, err := st.LoadAttachmentData(att.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 real bytes"), data)
}

func TestAttachmentRoundTripThroughSave(t *testing.T) {
	svc, st := newTestService(t)

	sess := svc.Start("round trip")
	m := sess.AppendUser("photo attached")
	att, err := sess.Attach(m.ID, "roof.png", pngBytes, WithExtractedText("a roof"), WithThumbnail([]byte{1, 2, 3}))
	require.NoError(t, err)
	require.NoError(t, sess.Save())

	stored, err := st.LoadAttachments(m.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, att.ID, stored[0].ID)
	assert.Nil(t, stored[0].Data)
	require.NotNil(t, stored[0].ExtractedText)
	assert.Equal(t, "a roof", *stored[0].ExtractedText)
	assert.Equal(t, []byte{1, 2, 3}, stored[0].ThumbnailData)

	data, err := svc.AttachmentData(att.ID)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
}

func TestSaveFullKeepsPayloadsAfterResume(t *testing.T) {
	svc, st := newTestService(t)

	first := svc.Start("full save")
	m := first.AppendUser("photo attached")
	att, err := first.Attach(m.ID, "roof.png", pngBytes)
	require.NoError(t, err)
	require.NoError(t, first.Save())

	// Resume loads attachment metadata without payload bytes. A full
	// rewrite must not lose the stored payload because of that.
	sess, err := svc.Resume(first.ID())
	require.NoError(t, err)
	require.NoError(t, sess.SaveFull())

	data, err := st.LoadAttachmentData(att.ID)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
}
