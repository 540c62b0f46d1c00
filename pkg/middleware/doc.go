// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// 中心となるのはBearerトークンによるアクセス判定ゲート（Gate）で、
// 公開エンドポイントの判定、トークンの抽出、固定トークンまたは署名付きJWTによる
// 本人確認、リクエストコンテキストへのIdentityの付与を行う。
// そのほかリクエストログ、パニックリカバリ、CORS設定を含む。
package middleware
