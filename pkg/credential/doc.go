// Package credential はゲートウェイが参照する「現在有効なトークン」の取得元を抽象化する。
//
// Store は CurrentToken のみを持つ単一メソッドのインターフェースであり、
// デモ用・固定値・SQLite・Redis・Vault・HTTP・JWT の各実装を差し替えて使用する。
// I/O を伴う実装は Refresher を実装し、取得結果をキャッシュしておくことで
// CurrentToken がブロックしないことを保証する。
//
// Shared は有効な Store を1つだけ保持する読み書きロック付きのハンドルで、
// 並行するリクエストからの読み取りと実行時の差し替え（Swap）を両立する。
package credential
