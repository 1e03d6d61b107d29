package fedi

import (
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// AccountStatus - アカウントの状態
// 凍結はモデレーションの処理が書き込み、ここでは読み取りのみ行う
type AccountStatus int

const (
	AccountStatusActive             AccountStatus = 0
	AccountStatusSuspendedTemporary AccountStatus = 1
	AccountStatusSuspendedPermanent AccountStatus = 2
)

func (s AccountStatus) Value() int {
	return int(s)
}

func FindAccountStatus(v int) AccountStatus {
	switch v {
	case AccountStatusSuspendedTemporary.Value():
		return AccountStatusSuspendedTemporary
	case AccountStatusSuspendedPermanent.Value():
		return AccountStatusSuspendedPermanent
	default:
		return AccountStatusActive
	}
}

type Account struct {
	ID              string
	Username        string
	Email           string
	Password        string
	PrivateKey      string
	Status          AccountStatus
	HideCollections bool
}

type Actor struct {
	ID        string
	Username  string
	Host      string
	PublicKey string
}

// Availability - アカウントへのアクセス可否
type Availability int

const (
	AvailabilityOK Availability = iota
	// AvailabilityForbidden is a temporary suspension. HTTP 403.
	AvailabilityForbidden
	// AvailabilityGone is a permanent suspension. HTTP 410.
	AvailabilityGone
)

// CheckAvailability - 凍結状態からレスポンス可否を判定する
// 他のどの処理よりも先に実行すること
func CheckAvailability(account *Account) Availability {
	switch account.Status {
	case AccountStatusSuspendedTemporary:
		return AvailabilityForbidden
	case AccountStatusSuspendedPermanent:
		return AvailabilityGone
	default:
		return AvailabilityOK
	}
}

// Visibility - フォロー関係の公開範囲
// フォロワー数は常に公開され、一覧のみ非公開にできる
type Visibility struct {
	DiscloseCount bool
	DiscloseItems bool
}

func AccountVisibility(account *Account) Visibility {
	return Visibility{
		DiscloseCount: true,
		DiscloseItems: !account.HideCollections,
	}
}

// generateID - IDの生成
func generateID() string {
	id := uuid.New()
	idStr := strings.ReplaceAll(id.String(), "-", "")
	return idStr
}

// GenerateSortableID - 作成順にソート可能なIDの生成
func GenerateSortableID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return id.String()
}
