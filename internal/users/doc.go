// Package users はユーザー登録サービスの内部実装を提供する。
//
// POST /users/register でユーザーを登録する。リクエストはmiddleware.Gateで
// Bearerトークンを検証した後にのみハンドラーへ到達する。入力検証、メールアドレスの
// 重複確認、bcryptによるパスワードハッシュ化、SQLiteへの保存を行い、
// パスワードを含まないユーザー情報を返す。
package users
