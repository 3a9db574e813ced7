// Package server は、HTTPサーバーとWebSocket通信を管理します。
//
// このパッケージは、キャプチャ操作のAPI、MJPEGによる映像配信、
// WebSocketによる状態通知、ビューアページの配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - キャプチャの開始・停止、フィルタ選択、スナップショット保存の受け付け
//   - 処理済みフレームのMJPEG配信
//   - 状態文字列のWebSocket配信
//   - 埋め込みHTMLの配信
//
// 仕様:
//   - ルーティングはginを使用
//   - WebSocketはgorilla/websocketを使用
//   - グレースフルシャットダウンに対応
//   - 複数クライアントの同時接続をサポート
package server
