// Package gateway はhaystackゲートウェイのHTTPサーバーを提供する。
//
// GET /hello を Authorization ヘッダーと現在のトークンの有無で保護する。
// トークンは credential.Shared が保持する Store から取得し、Store は実行中に
// 差し替えられる。認証の拒否やルート不一致はすべて middleware.Rejections が
// HTTPレスポンスに変換する。
package gateway
