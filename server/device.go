package server

import (
	"net/http"
	"net/url"
	"os"
	"path"

	"github.com/google/uuid"
	"github.com/yeqown/go-qrcode/v2"
	"github.com/yeqown/go-qrcode/writer/standard"

	"github.com/soteria-id/soteria/oauth"
)

// DeviceAuthorizationResponse is the success body of the device
// authorization endpoint.
type DeviceAuthorizationResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int64  `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// DeviceAuthorization handles the device authorization endpoint POST. The
// device later exchanges the returned device_code at the token endpoint.
func (h *Handler) DeviceAuthorization(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, oauth.NewError(oauth.ErrInvalidRequest, "malformed form body"))
		return
	}
	clientID := r.PostForm.Get("client_id")
	scopes := oauth.ParseScope(r.PostForm.Get("scope"))
	device, err := h.grants.RequestDeviceAuthorization(r.Context(), clientID, scopes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	verificationURI := h.issuerOf(r) + "/device"
	writeJSON(w, http.StatusOK, DeviceAuthorizationResponse{
		DeviceCode:              device.DeviceCode,
		UserCode:                device.UserCode,
		VerificationURI:         verificationURI,
		VerificationURIComplete: verificationURI + "?user_code=" + url.QueryEscape(device.UserCode),
		ExpiresIn:               int64(device.ExpiresAt.Sub(device.CreatedAt).Seconds()),
		Interval:                device.Interval,
	})
}

// ApproveDevice handles the end-user approval POST on the verification page.
// The subject comes from the host session.
func (h *Handler) ApproveDevice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, oauth.NewError(oauth.ErrInvalidRequest, "malformed form body"))
		return
	}
	principal := h.principal(r)
	if !principal.Authenticated {
		h.writeError(w, oauth.NewError(oauth.ErrLoginRequired, "the end user is not authenticated"))
		return
	}
	userCode := r.PostForm.Get("user_code")
	if err := h.grants.ApproveDeviceAuthorization(r.Context(), userCode, principal.Subject); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DeviceQR renders the verification URI for a user code as a QR image, so a
// phone can scan it instead of typing the code.
func (h *Handler) DeviceQR(w http.ResponseWriter, r *http.Request) {
	userCode := r.URL.Query().Get("user_code")
	if userCode == "" {
		h.writeError(w, oauth.NewError(oauth.ErrInvalidRequest, "user_code is required"))
		return
	}
	target := h.issuerOf(r) + "/device?user_code=" + url.QueryEscape(userCode)
	p := uuid.New().String() + ".png"
	if err := createQRCode(target, p); err != nil {
		h.writeFault(w, err)
		return
	}
	defer func() {
		_ = os.Remove(p)
	}()
	http.ServeFile(w, r, p)
}

func createQRCode(qrURL string, downloadPath string) error {
	endpoint, err := url.Parse(qrURL)
	if err != nil {
		return err
	}
	qrCode, err := qrcode.NewWith(endpoint.String(),
		qrcode.WithEncodingMode(qrcode.EncModeByte),
		qrcode.WithErrorCorrectionLevel(qrcode.ErrorCorrectionQuart),
	)
	if err != nil {
		return err
	}
	wr, err := standard.New(path.Base(downloadPath))
	if err != nil {
		return err
	}
	return qrCode.Save(wr)
}
