// Package httpclient は外部のトークン配布サービスなどとJSONで通信するクライアントを提供する。
//
// 2xx 以外のレスポンスは StatusError として返すため、呼び出し側は
// errors.As でステータスコードに応じた処理を行える。
package httpclient
