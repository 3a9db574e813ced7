package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"visionflow/internal/stream"
)

// StatusMessage はWebSocketで送る状態
type StatusMessage struct {
	Text  string       `json:"text"`
	State stream.State `json:"state"`
	Time  time.Time    `json:"time"`
}

// handleMJPEG は表示更新をMJPEGで配信する
func (s *Server) handleMJPEG(c *gin.Context) {
	// MJPEGストリーミングのヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	v := s.session.Viewer()
	sub := v.Subscribe()
	defer v.Unsubscribe(sub.ID)

	s.logger.Debug("MJPEG配信を開始しました", zap.String("subscriber", sub.ID))

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return

		case u, ok := <-sub.C:
			if !ok {
				// Viewerが閉じられた
				return
			}
			if u.JPEG == nil {
				continue
			}
			if err := writeMJPEGPart(c.Writer, u.JPEG); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

// writeMJPEGPart はマルチパートの1フレーム分を書き込む
func writeMJPEGPart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

// handleStatusWebSocket は表示更新のたびに状態文字列を送る
func (s *Server) handleStatusWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocketへのアップグレードに失敗しました", zap.Error(err))
		return
	}
	defer conn.Close()

	v := s.session.Viewer()
	sub := v.Subscribe()
	defer v.Unsubscribe(sub.ID)

	// 受信は切断検知のためだけに読む
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// 接続直後に現在の状態を送る
	st := s.session.Status()
	if err := conn.WriteJSON(StatusMessage{Text: st.Text, State: st.State, Time: time.Now()}); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return

		case u, ok := <-sub.C:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			msg := StatusMessage{
				Text:  u.Status,
				State: s.session.Stream().State(),
				Time:  u.Time,
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}
