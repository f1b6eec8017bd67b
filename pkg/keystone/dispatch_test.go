package keystone

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func boundCorrector(t *testing.T, api *fakeAPI, w, h uint32) *Corrector {
	t.Helper()
	c := readyCorrector(t, api)
	require.NoError(t, c.BuildResources(w, h))
	return c
}

func TestApplyDisabledIsPassThrough(t *testing.T) {
	api := newFakeAPI()
	c := boundCorrector(t, api, 640, 480)

	callsBefore := api.totalCalls()
	p := Identity(640, 480)
	p.Enabled = false

	out, err := c.Apply(fakeSourceImage, p)
	require.NoError(t, err)
	assert.Equal(t, fakeSourceImage, out, "disabled apply must return the source unchanged")
	assert.Equal(t, 0, api.submissions)
	assert.Equal(t, callsBefore, api.totalCalls(), "disabled apply must make no device calls")
}

func TestApplyBeforeBuildIsNotInitialized(t *testing.T) {
	api := newFakeAPI()
	c := readyCorrector(t, api)

	callsBefore := api.totalCalls()
	out, err := c.Apply(fakeSourceImage, Identity(640, 480))
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, fakeSourceImage, out)
	assert.Equal(t, 0, api.submissions)
	assert.Equal(t, callsBefore, api.totalCalls())
}

func TestApplyNullSourceIsInvalid(t *testing.T) {
	api := newFakeAPI()
	c := boundCorrector(t, api, 640, 480)

	_, err := c.Apply(vk.NullImage, Identity(640, 480))
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Equal(t, 0, api.submissions)
}

func TestApplyRunsOneSubmission(t *testing.T) {
	api := newFakeAPI()
	c := boundCorrector(t, api, 640, 480)

	out, err := c.Apply(fakeSourceImage, Identity(640, 480))
	require.NoError(t, err)
	assert.Equal(t, c.OutputImage(), out)
	assert.Equal(t, 1, api.submissions)
	assert.Equal(t, 1, api.copies)
	assert.Equal(t, 1, api.boundSets)
	assert.Equal(t, 0, api.cmdLive, "transient command buffer must be freed")
}

func TestApplyDispatchGroupCounts(t *testing.T) {
	cases := []struct {
		w, h   uint32
		gx, gy uint32
	}{
		{640, 480, 40, 30},
		{33, 17, 3, 2},
		{16, 16, 1, 1},
		{1, 1, 1, 1},
		{1920, 1080, 120, 68},
	}

	for _, tc := range cases {
		api := newFakeAPI()
		c := boundCorrector(t, api, tc.w, tc.h)

		_, err := c.Apply(fakeSourceImage, Identity(tc.w, tc.h))
		require.NoError(t, err)
		require.Len(t, api.dispatches, 1)
		assert.Equal(t, [3]uint32{tc.gx, tc.gy, 1}, api.dispatches[0],
			"%dx%d", tc.w, tc.h)
	}
}

// sourceTransitions extracts the layout transitions recorded against the
// borrowed source image, in order.
func sourceTransitions(api *fakeAPI) []fakeBarrier {
	var out []fakeBarrier
	for _, b := range api.barriers {
		if b.image == fakeSourceImage {
			out = append(out, b)
		}
	}
	return out
}

func TestApplyRestoresSourceLayout(t *testing.T) {
	api := newFakeAPI()
	c := boundCorrector(t, api, 640, 480)

	_, err := c.Apply(fakeSourceImage, Identity(640, 480))
	require.NoError(t, err)

	trans := sourceTransitions(api)
	require.Len(t, trans, 2)
	assert.Equal(t, layoutPresentable, trans[0].oldLayout)
	assert.Equal(t, vk.ImageLayoutTransferSrcOptimal, trans[0].newLayout)
	assert.Equal(t, vk.ImageLayoutTransferSrcOptimal, trans[1].oldLayout)
	assert.Equal(t, layoutPresentable, trans[1].newLayout)
}

func TestApplyRestoresSourceLayoutOnSubmitFailure(t *testing.T) {
	// A submit failure means nothing executed on the device, so the source
	// stays in its presentable layout; the recorded sequence must still be
	// balanced in case a partial-execution model ran it.
	api := newFakeAPI().failOn("SubmitAndWait", 1)
	c := boundCorrector(t, api, 640, 480)

	out, err := c.Apply(fakeSourceImage, Identity(640, 480))
	require.ErrorIs(t, err, ErrDeviceResourceFailure)
	assert.Equal(t, fakeSourceImage, out, "caller presents the uncorrected source")
	assert.Equal(t, 0, api.cmdLive, "transient command buffer freed on the failure path")

	trans := sourceTransitions(api)
	require.Len(t, trans, 2)
	assert.Equal(t, layoutPresentable, trans[1].newLayout)

	// The resource bundle survives a dropped frame; the next apply works.
	out, err = c.Apply(fakeSourceImage, Identity(640, 480))
	require.NoError(t, err)
	assert.Equal(t, c.OutputImage(), out)
}

func TestApplyFailurePaths(t *testing.T) {
	for _, method := range []string{
		"AllocateCommandBuffer",
		"BeginCommandBuffer",
		"EndCommandBuffer",
		"MapMemory",
	} {
		t.Run(method, func(t *testing.T) {
			api := newFakeAPI().failOn(method, 1)
			c := boundCorrector(t, api, 640, 480)

			out, err := c.Apply(fakeSourceImage, Identity(640, 480))
			require.ErrorIs(t, err, ErrDeviceResourceFailure)
			assert.Equal(t, fakeSourceImage, out)
			assert.Equal(t, 0, api.submissions)
			assert.Equal(t, 0, api.cmdLive)
			assert.Equal(t, StateResourceBound, c.State(), "bundle stays valid")
		})
	}
}

func TestUpdateParametersWritesUniformBlock(t *testing.T) {
	api := newFakeAPI()
	c := boundCorrector(t, api, 640, 480)

	p := Identity(640, 480).Nudge(2, -12, 8.5)
	require.NoError(t, c.UpdateParameters(p))

	require.Len(t, api.lastUniform, uniformSize)
	got := make([]float32, 10)
	for i := range got {
		got[i] = math.Float32frombits(binary.LittleEndian.Uint32(api.lastUniform[i*4:]))
	}
	want := []float32{0, 0, 640, 0, 628, 488.5, 0, 480, 640, 480}
	assert.Equal(t, want, got)
}

func TestUpdateParametersBeforeBuild(t *testing.T) {
	api := newFakeAPI()
	c := readyCorrector(t, api)
	assert.ErrorIs(t, c.UpdateParameters(Identity(640, 480)), ErrNotInitialized)
}

func TestInputTransitionsEndInGeneralLayout(t *testing.T) {
	api := newFakeAPI()
	c := boundCorrector(t, api, 640, 480)

	_, err := c.Apply(fakeSourceImage, Identity(640, 480))
	require.NoError(t, err)

	input := c.res.inputImage
	output := c.res.outputImage

	var inputTrans, outputTrans []fakeBarrier
	for _, b := range api.barriers {
		switch b.image {
		case input:
			inputTrans = append(inputTrans, b)
		case output:
			outputTrans = append(outputTrans, b)
		}
	}

	require.Len(t, inputTrans, 2)
	assert.Equal(t, vk.ImageLayoutUndefined, inputTrans[0].oldLayout)
	assert.Equal(t, vk.ImageLayoutTransferDstOptimal, inputTrans[0].newLayout)
	assert.Equal(t, vk.ImageLayoutGeneral, inputTrans[1].newLayout)

	require.Len(t, outputTrans, 1)
	assert.Equal(t, vk.ImageLayoutUndefined, outputTrans[0].oldLayout)
	assert.Equal(t, vk.ImageLayoutGeneral, outputTrans[0].newLayout)
}
