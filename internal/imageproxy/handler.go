package imageproxy

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"resty.dev/v3"

	"storefront/exporter/internal/proxy"
)

// Handler is a pass-through image fetcher for runtimes where direct
// cross-origin image requests are disallowed. Targets must be https and
// only GET, HEAD and OPTIONS are served.
type Handler struct {
	httpClient *resty.Client
}

func NewHandler(proxySupplier proxy.Supplier) *Handler {
	client := resty.New().
		SetTimeout(30*time.Second).
		SetHeader("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36").
		SetTLSClientConfig(&tls.Config{
			InsecureSkipVerify: true,
		})

	if proxySupplier != nil {
		if proxyURL := proxySupplier.Get(); proxyURL != "" {
			client.SetProxy(proxyURL)
			log.Infof("🔗 Image proxy using outbound proxy: %s", proxyURL)
		}
	}

	return &Handler{httpClient: client}
}

// Router mounts the handler on /image.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/image", h.serveImage)
	r.Head("/image", h.serveImage)
	r.Options("/image", h.serveOptions)
	return r
}

func (h *Handler) serveOptions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", "GET, HEAD, OPTIONS")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) serveImage(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}

	parsed, err := url.Parse(target)
	if err != nil || parsed.Scheme != "https" || parsed.Host == "" {
		http.Error(w, "target must be an absolute https URL", http.StatusBadRequest)
		return
	}

	resp, err := h.httpClient.R().SetContext(r.Context()).Get(target)
	if err != nil {
		log.Warnf("Image proxy fetch failed for %s: %v", target, err)
		http.Error(w, "failed to fetch image", http.StatusBadGateway)
		return
	}
	if resp.IsError() {
		log.Warnf("Image proxy got %s for %s", resp.Status(), target)
		http.Error(w, "upstream error", http.StatusBadGateway)
		return
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	if _, err := w.Write(resp.Bytes()); err != nil {
		log.Debugf("Image proxy write aborted for %s: %v", target, err)
	}
}
