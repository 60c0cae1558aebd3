package vkframe

import (
	"bytes"
	"testing"

	"github.com/andewx/vkframe/hal"
	"github.com/andewx/vkframe/hal/haltest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUploader(t *testing.T, f *fixture, opts ...UploaderOption) *StagedUploader {
	t.Helper()
	u, err := NewStagedUploader(f.ctx, opts...)
	require.NoError(t, err)
	t.Cleanup(u.Close)
	return u
}

func TestUploadToBufferRoundTrip(t *testing.T) {
	f := newFixture(t)
	u := newUploader(t, f, WithReadback())
	data := []byte("vertex data that must survive staging")

	buf, err := u.UploadToBuffer(data, hal.BufferUsageVertex)
	require.NoError(t, err)

	fake := buf.Buffer.(*haltest.Buffer)
	assert.Equal(t, uint64(len(data)), buf.Size)
	assert.Equal(t, hal.BufferUsageVertex|hal.BufferUsageTransferDst|hal.BufferUsageTransferSrc, fake.Usage())
	assert.Equal(t, hal.SharingConcurrent, fake.Sharing())
	assert.Equal(t, data, fake.Contents())

	back, err := u.ReadBuffer(buf)
	require.NoError(t, err)
	assert.Equal(t, data, back)

	// Only the destination outlives the calls.
	assert.Equal(t, 1, f.rec.Live(haltest.KindBuffer))
	assert.Equal(t, 1, f.rec.Live(haltest.KindMemory))
	assert.Equal(t, 0, f.rec.Live(haltest.KindCommandBuffer))

	// The copy ran on the transfer queue.
	copies := f.rec.EventsOf(haltest.OpCopyBuffer)
	require.Len(t, copies, 2)
	assert.Equal(t, uint32(1), copies[0].Queue)

	buf.Destroy()
	buf.Destroy()
	assert.Equal(t, 0, f.rec.Live(haltest.KindBuffer))
	f.noViolations()
}

func TestUploadToBufferWithoutReadback(t *testing.T) {
	f := newFixture(t)
	u := newUploader(t, f)

	buf, err := u.UploadToBuffer([]byte{1, 2, 3, 4}, hal.BufferUsageIndex)
	require.NoError(t, err)
	defer buf.Destroy()

	assert.Zero(t, buf.Buffer.(*haltest.Buffer).Usage()&hal.BufferUsageTransferSrc)
	_, err = u.ReadBuffer(buf)
	assert.Error(t, err)
	f.noViolations()
}

func TestUploadSingleFamilyIsExclusive(t *testing.T) {
	spec := haltest.DefaultAdapter()
	spec.Families = []hal.QueueFamily{{Flags: hal.QueueGraphics | hal.QueueTransfer, Count: 1}}
	f := newFixture(t, spec)
	u := newUploader(t, f)

	buf, err := u.UploadToBuffer([]byte{9, 8, 7}, hal.BufferUsageVertex)
	require.NoError(t, err)
	defer buf.Destroy()

	assert.Equal(t, hal.SharingExclusive, buf.Buffer.(*haltest.Buffer).Sharing())
	assert.Equal(t, []byte{9, 8, 7}, buf.Buffer.(*haltest.Buffer).Contents())
	f.noViolations()
}

func TestUploadLeavesNoResidue(t *testing.T) {
	f := newFixture(t)
	u := newUploader(t, f)

	big, err := u.UploadToBuffer(bytes.Repeat([]byte{0xFF}, 64), hal.BufferUsageVertex)
	require.NoError(t, err)
	big.Destroy()

	// The freed allocation is reused without clearing; the new buffer must
	// still hold exactly the new data.
	small, err := u.UploadToBuffer(bytes.Repeat([]byte{0x01}, 16), hal.BufferUsageVertex)
	require.NoError(t, err)
	defer small.Destroy()
	assert.Equal(t, bytes.Repeat([]byte{0x01}, 16), small.Buffer.(*haltest.Buffer).Contents())
	f.noViolations()
}

func TestRewrite(t *testing.T) {
	f := newFixture(t)
	u := newUploader(t, f)

	buf, err := u.UploadToBuffer([]byte{1, 2, 3, 4, 5, 6, 7, 8}, hal.BufferUsageUniform)
	require.NoError(t, err)
	defer buf.Destroy()

	require.NoError(t, u.Rewrite(buf, []byte{9, 9}))
	assert.Equal(t, []byte{9, 9, 3, 4, 5, 6, 7, 8}, buf.Buffer.(*haltest.Buffer).Contents())

	err = u.Rewrite(buf, make([]byte, 9))
	var rerr *ResourceCreationError
	assert.True(t, errors.As(err, &rerr))
	assert.Equal(t, 1, f.rec.Live(haltest.KindBuffer))
	f.noViolations()
}

func TestUploadEmpty(t *testing.T) {
	f := newFixture(t)
	u := newUploader(t, f)

	_, err := u.UploadToBuffer(nil, hal.BufferUsageVertex)
	var rerr *ResourceCreationError
	assert.True(t, errors.As(err, &rerr))
	assert.Equal(t, 0, f.rec.Live(haltest.KindBuffer))
}

func TestUploadFailureCleansUp(t *testing.T) {
	for _, op := range []string{"AllocateMemory", "BindBufferMemory", "MapMemory", "Submit", "QueueWaitIdle"} {
		t.Run(op, func(t *testing.T) {
			f := newFixture(t)
			u := newUploader(t, f)
			f.dev.FailNext(op, hal.ErrorDeviceLost)

			buf, err := u.UploadToBuffer([]byte{1, 2, 3, 4}, hal.BufferUsageVertex)
			require.Error(t, err)
			assert.Nil(t, buf)
			assert.Equal(t, hal.ErrorDeviceLost, resultOf(err))
			assert.Equal(t, 0, f.rec.Live(haltest.KindBuffer))
			assert.Equal(t, 0, f.rec.Live(haltest.KindMemory))
			assert.Equal(t, 0, f.rec.Live(haltest.KindCommandBuffer))
			f.noViolations()
		})
	}
}

func TestQueueWaitFailureDrainsDeviceBeforeFreeing(t *testing.T) {
	tests := map[string]func(u *StagedUploader) error{
		"buffer": func(u *StagedUploader) error {
			_, err := u.UploadToBuffer(make([]byte, 64), hal.BufferUsageIndex)
			return err
		},
		"image": func(u *StagedUploader) error {
			_, err := u.UploadTexture(Checkerboard(4, 2))
			return err
		},
	}
	for name, upload := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			u := newUploader(t, f)
			f.dev.FailNext("QueueWaitIdle", hal.ErrorDeviceLost)

			err := upload(u)
			var serr *SubmissionError
			require.True(t, errors.As(err, &serr))
			assert.Contains(t, serr.Op, "queue wait idle")
			assert.Equal(t, 1, f.rec.Count(haltest.OpDeviceWaitIdle))
			assert.Equal(t, 0, f.rec.Live(haltest.KindBuffer))
			assert.Equal(t, 0, f.rec.Live(haltest.KindImage))
			assert.Equal(t, 0, f.rec.Live(haltest.KindCommandBuffer))
			f.noViolations()
		})
	}
}

func TestReadBackQueueWaitFailure(t *testing.T) {
	f := newFixture(t)
	u := newUploader(t, f, WithReadback())
	buf, err := u.UploadToBuffer(make([]byte, 16), hal.BufferUsageVertex)
	require.NoError(t, err)
	defer buf.Destroy()

	f.dev.FailNext("QueueWaitIdle", hal.ErrorDeviceLost)
	_, err = u.ReadBuffer(buf)
	assert.Equal(t, hal.ErrorDeviceLost, resultOf(err))
	assert.Equal(t, 1, f.rec.Live(haltest.KindBuffer))
	f.noViolations()
}

func TestIndexBufferReadBack(t *testing.T) {
	f := newFixture(t)
	u := newUploader(t, f, WithReadback())
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i * 3)
	}

	buf, err := u.UploadToBuffer(data, hal.BufferUsageIndex)
	require.NoError(t, err)
	defer buf.Destroy()
	assert.Equal(t, hal.BufferUsageIndex|hal.BufferUsageTransferDst|hal.BufferUsageTransferSrc,
		buf.Buffer.(*haltest.Buffer).Usage())

	back, err := u.ReadBuffer(buf)
	require.NoError(t, err)
	assert.Equal(t, data, back)
	assert.Equal(t, 2, f.rec.Count(haltest.OpCopyBuffer))
	assert.Equal(t, 1, f.rec.Live(haltest.KindBuffer))
	f.noViolations()
}

func TestUploadTwiceSameSize(t *testing.T) {
	f := newFixture(t)
	u := newUploader(t, f, WithReadback())
	first := bytes.Repeat([]byte{0xAA}, 64)
	second := bytes.Repeat([]byte{0x55}, 64)

	buf, err := u.UploadToBuffer(first, hal.BufferUsageIndex)
	require.NoError(t, err)
	buf.Destroy()
	buf, err = u.UploadToBuffer(second, hal.BufferUsageIndex)
	require.NoError(t, err)
	defer buf.Destroy()
	back, err := u.ReadBuffer(buf)
	require.NoError(t, err)
	assert.Equal(t, second, back)

	require.NoError(t, u.Rewrite(buf, first))
	back, err = u.ReadBuffer(buf)
	require.NoError(t, err)
	assert.Equal(t, first, back)
	f.noViolations()
}

func TestUploadToImageTwiceSameSize(t *testing.T) {
	f := newFixture(t)
	u := newUploader(t, f)
	first := bytes.Repeat([]byte{0x10, 0x20, 0x30, 0xFF}, 16)
	second := bytes.Repeat([]byte{0xC0, 0xB0, 0xA0, 0xFF}, 16)

	img, err := u.UploadToImage(first, 4, 4, hal.FormatR8G8B8A8Srgb, hal.StageFragmentShader)
	require.NoError(t, err)
	img.Destroy()
	img, err = u.UploadToImage(second, 4, 4, hal.FormatR8G8B8A8Srgb, hal.StageFragmentShader)
	require.NoError(t, err)
	defer img.Destroy()

	assert.Equal(t, second, img.Image.(*haltest.Image).Contents())
	assert.Equal(t, 0, f.rec.Live(haltest.KindBuffer))
	f.noViolations()
}

func TestUploadSubmitFailureIsSubmissionError(t *testing.T) {
	f := newFixture(t)
	u := newUploader(t, f)
	f.dev.FailNext("Submit", hal.ErrorDeviceLost)

	_, err := u.UploadToBuffer([]byte{1}, hal.BufferUsageVertex)
	var serr *SubmissionError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "upload buffer: submit", serr.Op)
	assert.Equal(t, 0, f.rec.Live(haltest.KindCommandBuffer))
}

func TestUploadTexture(t *testing.T) {
	f := newFixture(t)
	u := newUploader(t, f)
	tex := Checkerboard(4, 2)

	img, err := u.UploadTexture(tex)
	require.NoError(t, err)

	fake := img.Image.(*haltest.Image)
	assert.Equal(t, hal.Extent2D{Width: 4, Height: 4}, img.Extent)
	assert.Equal(t, hal.FormatR8G8B8A8Srgb, img.Format)
	assert.Equal(t, hal.LayoutShaderReadOnly, fake.Layout())
	assert.Equal(t, tex.Pixels, fake.Contents())
	assert.NotNil(t, img.View)

	barriers := f.rec.EventsOf(haltest.OpBarrier)
	require.Len(t, barriers, 2)
	first, second := barriers[0], barriers[1]
	assert.Equal(t, uint32(1), first.Queue)
	assert.Equal(t, hal.StageTopOfPipe, first.SrcStage)
	assert.Equal(t, hal.StageTransfer, first.DstStage)
	assert.Equal(t, hal.LayoutUndefined, first.OldLayout)
	assert.Equal(t, hal.LayoutTransferDst, first.NewLayout)

	assert.Equal(t, uint32(0), second.Queue)
	assert.Equal(t, hal.StageTransfer, second.SrcStage)
	assert.Equal(t, hal.StageFragmentShader, second.DstStage)
	assert.Equal(t, hal.LayoutTransferDst, second.OldLayout)
	assert.Equal(t, hal.LayoutShaderReadOnly, second.NewLayout)
	assert.Equal(t, 1, f.rec.Count(haltest.OpCopyBufferImage))

	assert.Equal(t, 0, f.rec.Live(haltest.KindBuffer))
	assert.Equal(t, 1, f.rec.Live(haltest.KindImage))
	img.Destroy()
	assert.Equal(t, 0, f.rec.Live(haltest.KindImage))
	assert.Equal(t, 0, f.rec.Live(haltest.KindImageView))
	assert.Equal(t, 0, f.rec.Live(haltest.KindMemory))
	f.noViolations()
}

func TestUploadToImageRejectsSizeMismatch(t *testing.T) {
	f := newFixture(t)
	u := newUploader(t, f)

	_, err := u.UploadToImage(make([]byte, 15), 2, 2, hal.FormatR8G8B8A8Srgb, hal.StageFragmentShader)
	var rerr *ResourceCreationError
	assert.True(t, errors.As(err, &rerr))
	assert.Equal(t, 0, f.rec.Live(haltest.KindBuffer))
	assert.Equal(t, 0, f.rec.Live(haltest.KindImage))
}

func TestUploadToImageTransitionFailure(t *testing.T) {
	f := newFixture(t)
	u := newUploader(t, f)
	// The second submission is the graphics queue transition.
	f.dev.FailNth("Submit", 2, hal.ErrorDeviceLost)

	_, err := u.UploadTexture(Checkerboard(2, 1))
	var serr *SubmissionError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "transition image: submit", serr.Op)
	assert.Equal(t, 0, f.rec.Live(haltest.KindImage))
	assert.Equal(t, 0, f.rec.Live(haltest.KindBuffer))
	assert.Equal(t, 0, f.rec.Live(haltest.KindMemory))
}

func TestHostBuffer(t *testing.T) {
	f := newFixture(t)
	u := newUploader(t, f)

	hb, err := u.CreateHostBuffer(64, hal.BufferUsageUniform)
	require.NoError(t, err)
	require.Len(t, hb.Mapped, 64)

	m := Translate(Vec3{1, 2, 3}).Bytes()
	copy(hb.Mapped, m)
	assert.Equal(t, m, hb.Buffer.(*haltest.Buffer).Contents())

	hb.Destroy()
	assert.Nil(t, hb.Mapped)
	assert.Equal(t, 0, f.rec.Live(haltest.KindBuffer))
	assert.Equal(t, 0, f.rec.Live(haltest.KindMemory))
	f.noViolations()
}
