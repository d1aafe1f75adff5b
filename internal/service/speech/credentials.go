package speech

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	speechmodel "github.com/zhouzirui/voiceturn/backend/internal/model/speech"
)

// ErrMissingCredentials 表示 provider 缺少必需的密钥
var ErrMissingCredentials = errors.New("speech provider credentials missing")

// volcengineHeaders 构造火山引擎握手头，缺少 AppID 或 AccessToken 时报错。
func volcengineHeaders(cfg speechmodel.VolcengineConfig, resourceID string) (http.Header, string, error) {
	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if appID == "" || token == "" {
		return nil, "", ErrMissingCredentials
	}

	connectID := uuid.NewString()
	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)
	return header, connectID, nil
}
