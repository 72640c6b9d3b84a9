package handlers

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v4"

	"github.com/venturelink/pitchcall/internal/application/config"
)

type IceHandler struct {
	cfg *config.Config
}

func NewIceHandler(cfg *config.Config) *IceHandler {
	return &IceHandler{cfg: cfg}
}

// Handler для выдачи ICE серверов
func (h *IceHandler) IceServers(c echo.Context) error {
	servers := []webrtc.ICEServer{
		{URLs: []string{h.cfg.StunURL}},
	}

	// TURN отдаём только если настроен coturn
	if h.cfg.CoturnServer.Host != "" {
		expiration := time.Now().Add(time.Hour).Unix()
		username := fmt.Sprintf("%d", expiration)

		// HMAC-SHA1 с использованием static-auth-secret
		mac := hmac.New(sha1.New, []byte(h.cfg.CoturnServer.Secret))
		mac.Write([]byte(username))
		password := base64.StdEncoding.EncodeToString(mac.Sum(nil))

		servers = append(servers, webrtc.ICEServer{
			URLs: []string{
				h.cfg.TurnUDPServer.URLs[0],
				h.cfg.TurnTCPServer.URLs[0],
			},
			Username:   username,
			Credential: password,
		})
	}

	return c.JSON(http.StatusOK, servers)
}
