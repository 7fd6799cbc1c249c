package frame

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tingzhh2025/aisecurityvision/internal/model"
)

// fakeOnvifServer serves just enough SOAP to satisfy GetCapabilities,
// GetProfiles and GetSnapshotUri, plus a JPEG snapshot endpoint.
func fakeOnvifServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var baseURL string

	mux.HandleFunc("/onvif/device_service", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch {
		case strings.Contains(string(body), "GetCapabilities"):
			fmt.Fprintf(w, `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"><s:Body>
				<GetCapabilitiesResponse><Capabilities><Media><XAddr>%s/onvif/device_service</XAddr></Media></Capabilities></GetCapabilitiesResponse>
			</s:Body></s:Envelope>`, baseURL)
		case strings.Contains(string(body), "GetProfiles"):
			fmt.Fprint(w, `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"><s:Body>
				<GetProfilesResponse><Profiles token="profile1"><Name>main</Name>
				<VideoEncoderConfiguration><Encoding>JPEG</Encoding><Resolution><Width>32</Width><Height>24</Height></Resolution></VideoEncoderConfiguration>
				</Profiles></GetProfilesResponse>
			</s:Body></s:Envelope>`)
		case strings.Contains(string(body), "GetSnapshotUri"):
			fmt.Fprintf(w, `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"><s:Body>
				<GetSnapshotUriResponse><MediaUri><Uri>%s/snapshot.jpg</Uri></MediaUri></GetSnapshotUriResponse>
			</s:Body></s:Envelope>`, baseURL)
		}
	})

	mux.HandleFunc("/snapshot.jpg", func(w http.ResponseWriter, r *http.Request) {
		img := image.NewRGBA(image.Rect(0, 0, 32, 24))
		for y := 0; y < 24; y++ {
			for x := 0; x < 32; x++ {
				img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
			}
		}
		var buf bytes.Buffer
		jpeg.Encode(&buf, img, nil)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(buf.Bytes())
	})

	srv := httptest.NewServer(mux)
	baseURL = srv.URL
	return srv
}

func TestOnvifSnapshotDecoderOpenAndNextFrame(t *testing.T) {
	srv := fakeOnvifServer(t)
	defer srv.Close()

	d := &OnvifSnapshotDecoder{PollInterval: time.Millisecond}
	src := model.VideoSource{ID: "cam1", URL: srv.URL + "/onvif/device_service", Protocol: model.ProtocolONVIF}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.Open(ctx, src); err != nil {
		t.Fatalf("Open error: %v", err)
	}

	f, err := d.NextFrame(ctx)
	if err != nil {
		t.Fatalf("NextFrame error: %v", err)
	}
	if f.Width != 32 || f.Height != 24 {
		t.Errorf("expected 32x24 frame, got %dx%d", f.Width, f.Height)
	}
	if f.CameraID != "cam1" {
		t.Errorf("expected camera id cam1, got %s", f.CameraID)
	}
	if len(f.Pix) != 32*24*4 {
		t.Errorf("expected RGBA pix buffer, got %d bytes", len(f.Pix))
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}

func TestOnvifSnapshotDecoderAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := &OnvifSnapshotDecoder{PollInterval: time.Millisecond, snapshotURL: srv.URL, http: &http.Client{}}
	_, err := d.NextFrame(context.Background())
	if !IsAuthFailure(err) {
		t.Errorf("expected auth failure classification, got %v", err)
	}
}
