// Package provider 放站点适配器共用的类型：统一的结果、代理获取和域名发现。
package provider

// Result 是站点响应归一化后的结果，HTML 标记和 JSON 错误码都转换成它。
type Result struct {
	OK     bool
	Reason string
	// ChallengeRejected 表示失败原因是验证码不对或过期，可以换一张重试。
	ChallengeRejected bool
}

func OK() Result { return Result{OK: true} }

func Fail(reason string) Result { return Result{Reason: reason} }

func Rejected(reason string) Result { return Result{Reason: reason, ChallengeRejected: true} }
