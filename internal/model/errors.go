// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, quota, payment, generation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeSessionRevoked       = "SESSION_REVOKED"
	ErrCodeLimitReached         = "LIMIT_REACHED"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeInvalidPlan          = "INVALID_PLAN"
	ErrCodeInvalidGateway       = "INVALID_GATEWAY"
	ErrCodePaymentProvider      = "PAYMENT_PROVIDER_ERROR"
	ErrCodeSignatureInvalid     = "SIGNATURE_INVALID"
	ErrCodeUserMismatch         = "USER_MISMATCH"
	ErrCodeCompletionFailed     = "COMPLETION_FAILED"
	ErrCodeGenerationNotFound   = "GENERATION_NOT_FOUND"
	ErrCodeInternal             = "INTERNAL_ERROR"
	ErrCodeGatewayNotConfigured = "GATEWAY_NOT_CONFIGURED"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewSessionRevokedError は別の端末でのログインによりセッションが無効化された場合のエラーを生成する。
func NewSessionRevokedError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionRevoked,
		Message:  "別の端末でログインされたため、このセッションは終了しました。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewLimitReachedError は無料枠の上限到達エラーを生成する。
func NewLimitReachedError(limit int) *APIError {
	return &APIError{
		Code:     ErrCodeLimitReached,
		Message:  fmt.Sprintf("本日の無料生成回数（%d回）の上限に達しました。", limit),
		Category: "quota",
		Action:   "明日（UTC）まで待つか、PROプランにアップグレードしてください。",
	}
}

// NewInvalidRequestError はリクエスト内容が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidPlanError は存在しないプランコードが指定された場合のエラーを生成する。
func NewInvalidPlanError(plan string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPlan,
		Message:  fmt.Sprintf("無効なプランです: %s", plan),
		Category: "validation",
		Action:   "プランには 1d、3d、1m、3m、6m、1y のいずれかを指定してください。",
	}
}

// NewInvalidGatewayError は未対応の決済ゲートウェイが指定された場合のエラーを生成する。
func NewInvalidGatewayError(gateway string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidGateway,
		Message:  fmt.Sprintf("未対応の決済方法です: %s", gateway),
		Category: "validation",
		Action:   "決済方法には yookassa または robokassa を指定してください。",
	}
}

// NewGatewayNotConfiguredError は決済ゲートウェイの認証情報が未設定の場合のエラーを生成する。
func NewGatewayNotConfiguredError(gateway string) *APIError {
	return &APIError{
		Code:     ErrCodeGatewayNotConfigured,
		Message:  fmt.Sprintf("決済方法 %s は現在利用できません。", gateway),
		Category: "payment",
		Action:   "別の決済方法を選択するか、サポートにお問い合わせください。",
	}
}

// NewPaymentProviderError は決済ゲートウェイとの通信失敗エラーを生成する。
// 詳細はログにのみ記録し、reasonには利用者に見せてよい内容だけを渡すこと。
func NewPaymentProviderError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePaymentProvider,
		Message:  fmt.Sprintf("決済サービスとの通信に失敗しました: %s", reason),
		Category: "payment",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewSignatureInvalidError はコールバック署名の検証失敗エラーを生成する。
func NewSignatureInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeSignatureInvalid,
		Message:  "署名が一致しません。",
		Category: "payment",
		Action:   "決済ゲートウェイの設定（パスワード#2）を確認してください。",
	}
}

// NewUserMismatchError は他ユーザーの決済IDが指定された場合のエラーを生成する。
func NewUserMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeUserMismatch,
		Message:  "この決済は別のアカウントに属しています。",
		Category: "payment",
		Action:   "決済を行ったアカウントでログインしてください。",
	}
}

// NewCompletionFailedError は文章生成サービスの呼び出し失敗エラーを生成する。
func NewCompletionFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCompletionFailed,
		Message:  "商品説明の生成に失敗しました。",
		Category: "generation",
		Action:   "しばらく待ってから再度お試しください。生成回数は消費されていません。",
	}
}

// NewGenerationNotFoundError は生成履歴が見つからない場合のエラーを生成する。
func NewGenerationNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeGenerationNotFound,
		Message:  fmt.Sprintf("指定された生成履歴が見つかりません: %s", id),
		Category: "generation",
		Action:   "履歴IDを確認してください。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
