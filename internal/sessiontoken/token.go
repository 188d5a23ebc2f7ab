package sessiontoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"classtrack/internal/marking"
	"classtrack/internal/schedule"
)

// Claims binds a session token to one course occurrence and its window.
type Claims struct {
	CourseID string `json:"cid"`
	Date     string `json:"date"` // YYYY-MM-DD
	Start    string `json:"start"`
	End      string `json:"end"`
	jwt.RegisteredClaims
}

// Issue mints a signed token for one session occurrence. The token
// outlives the window by a minute so the inclusive end-of-window check
// stays the deciding gate, not JWT expiry.
func Issue(courseID string, inst schedule.SessionInstance, issuer, key string) (string, error) {
	claims := Claims{
		CourseID: courseID,
		Date:     inst.Date.Format("2006-01-02"),
		Start:    inst.Start.String(),
		End:      inst.End.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   courseID,
			ExpiresAt: jwt.NewNumericDate(inst.End.On(inst.Date).Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
}

// Verifier validates presented session tokens. Implements
// marking.TokenVerifier.
type Verifier struct {
	Key    string
	Issuer string
	// Location anchors the token's date; must match the location the
	// schedule was expanded in.
	Location *time.Location
}

// Verify parses and validates a token and returns its bound session.
func (v Verifier) Verify(token string) (marking.Session, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(v.Key), nil
	})
	if err != nil {
		return marking.Session{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return marking.Session{}, errors.New("invalid token")
	}
	if v.Issuer != "" && claims.Issuer != v.Issuer {
		return marking.Session{}, errors.New("issuer mismatch")
	}

	loc := v.Location
	if loc == nil {
		loc = time.Local
	}
	date, err := time.ParseInLocation("2006-01-02", claims.Date, loc)
	if err != nil {
		return marking.Session{}, fmt.Errorf("bad session date: %w", err)
	}
	start, err := schedule.ParseClock(claims.Start)
	if err != nil {
		return marking.Session{}, err
	}
	end, err := schedule.ParseClock(claims.End)
	if err != nil {
		return marking.Session{}, err
	}
	return marking.Session{CourseID: claims.CourseID, Date: date, Start: start, End: end}, nil
}
