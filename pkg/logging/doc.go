// Package logging はzerologベースの構造化ロガーを構築する。
//
// プロセス起動時にNewで一度だけロガーを生成し、各コンポーネントへ明示的に渡す。
// グローバルなロガーは持たない。終了時はNewが返すクローズ関数で出力先を閉じる。
package logging
