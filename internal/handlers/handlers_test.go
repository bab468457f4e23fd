package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nfnt/resize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1demilade/cocoa-disease-app/internal/config"
	"github.com/1demilade/cocoa-disease-app/internal/model"
	"github.com/1demilade/cocoa-disease-app/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubClassifier struct {
	metadata model.Metadata
	probs    []float32
	err      error
}

func (s *stubClassifier) Metadata() model.Metadata { return s.metadata }

func (s *stubClassifier) Predict(_ context.Context, _ []float32) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]float32(nil), s.probs...), nil
}

func newRouter(t *testing.T, probs []float32, err error) *gin.Engine {
	t.Helper()
	md, mdErr := model.NewMetadata(config.ModelConfig{
		Labels:      config.DefaultLabels,
		InputShape:  []int64{1, 224, 224, 3},
		OutputShape: []int64{1, 3},
	})
	require.NoError(t, mdErr)

	svc := service.NewPredictService(&stubClassifier{metadata: md, probs: probs, err: err}, resize.Bicubic)
	h := NewHandler(svc, BuildInfo{Version: "test"})
	return SetupRoutes(h, RouterOptions{})
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if field != "" {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	} else {
		require.NoError(t, w.WriteField("note", "no file here"))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func imagePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func leafPNG(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 300; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: 160, B: uint8(y), A: 255})
		}
	}
	return imagePNG(t, img)
}

func postImage(t *testing.T, r http.Handler, field, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, field, filename, data)
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestPredictSuccess(t *testing.T) {
	r := newRouter(t, []float32{0.02, 0.03, 0.95}, nil)

	rec := postImage(t, r, "image", "leaf.png", leafPNG(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decode(t, rec)
	assert.Len(t, out, 3)
	assert.Equal(t, "HEALTHY", out["predicted_class"])
	assert.Equal(t, "95.00%", out["confidence"])
	assert.Equal(t, model.Healthy.Recommendation(), out["recommendation"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestPredictRecommendationPerLabel(t *testing.T) {
	cases := []struct {
		probs []float32
		class string
		label model.Label
	}{
		{[]float32{0.8, 0.1, 0.1}, "ANTHRACNOSE", model.Anthracnose},
		{[]float32{0.1, 0.8, 0.1}, "CSSVD", model.CSSVD},
		{[]float32{0.1, 0.1, 0.8}, "HEALTHY", model.Healthy},
	}
	for _, tc := range cases {
		rec := postImage(t, newRouter(t, tc.probs, nil), "image", "leaf.png", leafPNG(t))
		require.Equal(t, http.StatusOK, rec.Code)

		out := decode(t, rec)
		assert.Equal(t, tc.class, out["predicted_class"])
		assert.Equal(t, "80.00%", out["confidence"])
		assert.Equal(t, tc.label.Recommendation(), out["recommendation"])
		// markup is written raw, not \u003c escaped
		assert.Contains(t, rec.Body.String(), "<br><a href=")
	}
}

func TestPredictMissingImage(t *testing.T) {
	r := newRouter(t, []float32{1, 0, 0}, nil)

	t.Run("other field", func(t *testing.T) {
		rec := postImage(t, r, "", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error": "No image uploaded"}`, rec.Body.String())
	})

	t.Run("wrong field name", func(t *testing.T) {
		rec := postImage(t, r, "file", "leaf.png", leafPNG(t))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error": "No image uploaded"}`, rec.Body.String())
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error": "No image uploaded"}`, rec.Body.String())
	})
}

func TestPredictNonImage(t *testing.T) {
	r := newRouter(t, []float32{1, 0, 0}, nil)

	rec := postImage(t, r, "image", "notes.txt", []byte("just some text"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["error"])
}

func TestPredictInferenceFailure(t *testing.T) {
	r := newRouter(t, nil, errors.New("inference failed: session crashed"))

	rec := postImage(t, r, "image", "leaf.png", leafPNG(t))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "inference failed: session crashed", decode(t, rec)["error"])
}

func TestPredictUnavailable(t *testing.T) {
	r := newRouter(t, nil, model.ErrClosed)

	rec := postImage(t, r, "image", "leaf.png", leafPNG(t))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPredictGrayscaleAndRGBA(t *testing.T) {
	r := newRouter(t, []float32{0.1, 0.6, 0.3}, nil)

	gray := image.NewGray16(image.Rect(0, 0, 90, 40))
	rgba := image.NewNRGBA(image.Rect(0, 0, 40, 90))
	for i := range rgba.Pix {
		rgba.Pix[i] = uint8(i * 7)
	}

	for name, img := range map[string]image.Image{"gray": gray, "rgba": rgba} {
		rec := postImage(t, r, "image", name+".png", imagePNG(t, img))
		require.Equal(t, http.StatusOK, rec.Code, name)
		assert.Equal(t, "CSSVD", decode(t, rec)["predicted_class"], name)
	}
}

func TestPredictTensor(t *testing.T) {
	r := newRouter(t, []float32{0.5, 0.25, 0.25}, nil)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/predict/tensor", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"tensor": [0.1, 0.2]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "expected 150528 values")

	rec = post(`not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	tensor, err := json.Marshal(model.TensorRequest{Tensor: make([]float32, 224*224*3)})
	require.NoError(t, err)
	rec = post(string(tensor))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ANTHRACNOSE", decode(t, rec)["predicted_class"])
	assert.Equal(t, "50.00%", decode(t, rec)["confidence"])
}

func TestPreflight(t *testing.T) {
	r := newRouter(t, []float32{1, 0, 0}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "https://farm.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthAndVersion(t *testing.T) {
	r := newRouter(t, []float32{1, 0, 0}, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", decode(t, rec)["version"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(service.KindMissingInput))
	assert.Equal(t, http.StatusBadRequest, StatusFor(service.KindInvalidInput))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(service.KindDecode))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(service.KindInference))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(service.KindInternal))
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(service.KindUnavailable))
}
