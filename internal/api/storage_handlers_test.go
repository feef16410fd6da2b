package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/omnivault/omnivault/internal/audit"
	"github.com/omnivault/omnivault/internal/storage"
)

type fakeSigner struct {
	uploadErr   error
	downloadErr error
	lastName    string
	lastType    string
}

func (f *fakeSigner) SignUpload(ctx context.Context, fileName, contentType string) (*storage.UploadCredential, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.lastName = fileName
	f.lastType = contentType
	return &storage.UploadCredential{
		URL:       "https://vault-bucket.s3.amazonaws.com/upload",
		Key:       "vault-1700000000000-" + fileName,
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}, nil
}

func (f *fakeSigner) SignDownload(ctx context.Context, key string) (*storage.DownloadCredential, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return &storage.DownloadCredential{
		URL:       "https://vault-bucket.s3.amazonaws.com/" + key,
		Key:       key,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func TestSignUpload_Success(t *testing.T) {
	signer := &fakeSigner{}
	h := NewStorageHandlers(signer, audit.NewInMemoryRepository(), 25)

	body := `{"file_name":"report.pdf","content_type":"application/pdf","size_bytes":1048576}`
	req := httptest.NewRequest(http.MethodPost, "/uploads/sign", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.SignUpload(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var cred storage.UploadCredential
	if err := json.NewDecoder(w.Body).Decode(&cred); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if cred.URL == "" || cred.Key == "" {
		t.Errorf("credential incomplete: %+v", cred)
	}
	if signer.lastName != "report.pdf" {
		t.Errorf("signed name = %q", signer.lastName)
	}
}

func TestSignUpload_OctetStreamAllowed(t *testing.T) {
	signer := &fakeSigner{}
	h := NewStorageHandlers(signer, audit.NewInMemoryRepository(), 25)

	body := `{"file_name":"report.pdf.sealed","content_type":"application/octet-stream"}`
	req := httptest.NewRequest(http.MethodPost, "/uploads/sign", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.SignUpload(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if signer.lastType != storage.MIMEOctetStream {
		t.Errorf("signed type = %q", signer.lastType)
	}
}

func TestSignUpload_RejectsDisallowedType(t *testing.T) {
	signer := &fakeSigner{}
	h := NewStorageHandlers(signer, audit.NewInMemoryRepository(), 25)

	body := `{"file_name":"tool.exe","content_type":"application/x-executable"}`
	req := httptest.NewRequest(http.MethodPost, "/uploads/sign", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.SignUpload(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if signer.lastName != "" {
		t.Error("disallowed type should never reach the signer")
	}
}

func TestSignUpload_RejectsOversizedDeclaration(t *testing.T) {
	h := NewStorageHandlers(&fakeSigner{}, audit.NewInMemoryRepository(), 25)

	body := `{"file_name":"big.pdf","content_type":"application/pdf","size_bytes":27262976}`
	req := httptest.NewRequest(http.MethodPost, "/uploads/sign", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.SignUpload(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSignUpload_InvalidFileName(t *testing.T) {
	h := NewStorageHandlers(&fakeSigner{}, audit.NewInMemoryRepository(), 25)

	body := `{"file_name":"../../etc/passwd","content_type":"application/pdf"}`
	req := httptest.NewRequest(http.MethodPost, "/uploads/sign", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.SignUpload(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSignUpload_SignerUnreachable(t *testing.T) {
	h := NewStorageHandlers(&fakeSigner{uploadErr: errors.New("connect timeout")}, audit.NewInMemoryRepository(), 25)

	body := `{"file_name":"report.pdf","content_type":"application/pdf"}`
	req := httptest.NewRequest(http.MethodPost, "/uploads/sign", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.SignUpload(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
	if !strings.Contains(w.Body.String(), ErrCodeNetworkFailure) {
		t.Errorf("expected %s error code, got %s", ErrCodeNetworkFailure, w.Body.String())
	}
}

func TestSignDownload_Success(t *testing.T) {
	auditRepo := audit.NewInMemoryRepository()
	h := NewStorageHandlers(&fakeSigner{}, auditRepo, 25)

	req := asAlice(httptest.NewRequest(http.MethodGet, "/downloads/sign?key=vault-1700000000000-report.pdf", nil))
	w := httptest.NewRecorder()

	h.SignDownload(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var cred storage.DownloadCredential
	if err := json.NewDecoder(w.Body).Decode(&cred); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if cred.Key != "vault-1700000000000-report.pdf" {
		t.Errorf("key = %q", cred.Key)
	}

	logs, err := auditRepo.QueryByIdentity("alice@example.com", 10)
	if err != nil {
		t.Fatalf("QueryByIdentity() error = %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "download_asset" {
		t.Errorf("audit logs = %+v, want one download_asset entry", logs)
	}
}

func TestSignDownload_MissingKey(t *testing.T) {
	h := NewStorageHandlers(&fakeSigner{}, audit.NewInMemoryRepository(), 25)

	req := httptest.NewRequest(http.MethodGet, "/downloads/sign", nil)
	w := httptest.NewRecorder()

	h.SignDownload(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSignDownload_MethodNotAllowed(t *testing.T) {
	h := NewStorageHandlers(&fakeSigner{}, audit.NewInMemoryRepository(), 25)

	req := httptest.NewRequest(http.MethodPost, "/downloads/sign?key=abc", nil)
	w := httptest.NewRecorder()

	h.SignDownload(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}
