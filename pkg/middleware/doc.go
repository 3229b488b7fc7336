// Package middleware はゲートウェイのリクエストパイプラインを構成するGinミドルウェアを提供する。
//
// 各段は処理を続行するか、型付きの Rejection を積んで中断するかのどちらかを行う。
// Rejection は Rejections ミドルウェアが一箇所でHTTPレスポンスに変換する。
// 認証フィルタ（HayStackAuth）、依存注入（InjectState）、パニックリカバリ、
// CORS、リクエストID、アクセスログ、メトリクスを含む。
package middleware
