package server

import (
	"net/http"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 320

// handleJoinQR renders a PNG QR code pointing participants at the player
// page of the current session.
func handleJoinQR(store SessionStore, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		base := publicURL
		if base == "" {
			base = requestBaseURL(r)
		}

		link := strings.TrimSuffix(base, "/") + "/player?" + url.Values{
			"session": {store.State().SessionID},
		}.Encode()

		png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "qr generation failed")
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(png)
	}
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
