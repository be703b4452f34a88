package jiggler

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/jetkvm/jiggler/internal/ota"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOTADevice(t *testing.T) (*testDevice, *ota.Stager) {
	t.Helper()
	stager := ota.NewStager(t.TempDir(), semver.MustParse("1.4.2"), nil)
	td := newTestDevice(t, nil, func(o *DeviceOptions) { o.Stager = stager })
	return td, stager
}

func (td *testDevice) upload(query, field string, image []byte, cookie string) *httptest.ResponseRecorder {
	td.t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, "image.bin")
	require.NoError(td.t, err)
	_, err = part.Write(image)
	require.NoError(td.t, err)
	require.NoError(td.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/update"+query, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: cookie})
	rec := httptest.NewRecorder()
	td.router.ServeHTTP(rec, req)
	return rec
}

func TestUpdateStagesImageAndReboots(t *testing.T) {
	td, stager := newOTADevice(t)
	image := bytes.Repeat([]byte("firmware"), 4096)

	rec := td.upload("?target=firmware&version=1.5.0", "update", image, td.login())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "success", decodeBody(t, rec)["status"])

	data, err := os.ReadFile(stager.StagedPath(ota.TargetFirmware))
	require.NoError(t, err)
	assert.Equal(t, image, data)

	select {
	case <-td.rebootCh:
	case <-time.After(time.Second):
		t.Fatal("device did not reboot after update")
	}
}

func TestUpdateFilesystemTarget(t *testing.T) {
	td, stager := newOTADevice(t)

	rec := td.upload("?target=filesystem", "update", []byte("spiffs"), td.login())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.FileExists(t, stager.StagedPath(ota.TargetFilesystem))
	assert.NoFileExists(t, stager.StagedPath(ota.TargetFirmware))
}

func TestUpdateRejectsDowngrade(t *testing.T) {
	td, stager := newOTADevice(t)
	cookie := td.login()

	rec := td.upload("?version=1.0.0", "update", []byte("old"), cookie)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NoFileExists(t, stager.StagedPath(ota.TargetFirmware))

	rec = td.upload("?version=1.0.0&force=true", "update", []byte("old"), cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.FileExists(t, stager.StagedPath(ota.TargetFirmware))
}

func TestUpdateRejectsBadRequests(t *testing.T) {
	td, _ := newOTADevice(t)
	cookie := td.login()

	rec := td.upload("?target=bootloader", "update", []byte("x"), cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = td.upload("?version=latest", "update", []byte("x"), cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = td.upload("", "firmware", []byte("x"), cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = td.upload("", "update", nil, cookie)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = td.request(http.MethodPost, "/update", `{"not":"multipart"}`, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, td.rebootCh)
}

func TestUpdateWithoutStager(t *testing.T) {
	td := newTestDevice(t, nil)

	rec := td.upload("", "update", []byte("x"), td.login())
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
