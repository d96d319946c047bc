package domain

// QualityStatus is the aggregated quality health of a batch
type QualityStatus string

const (
	QualityGood     QualityStatus = "good"
	QualityWarning  QualityStatus = "warning"
	QualityCritical QualityStatus = "critical"
	QualityHold     QualityStatus = "hold"
)

// QualityValues returns every status, least to most severe
func QualityValues() []string {
	return []string{string(QualityGood), string(QualityWarning), string(QualityCritical), string(QualityHold)}
}

// ParseQualityStatus validates a quality status value
func ParseQualityStatus(s string) (QualityStatus, error) {
	q := QualityStatus(s)
	if q.severity() < 0 {
		return "", ErrInvalidQualityStatus
	}
	return q, nil
}

func (q QualityStatus) severity() int {
	switch q {
	case QualityGood:
		return 0
	case QualityWarning:
		return 1
	case QualityCritical:
		return 2
	case QualityHold:
		return 3
	default:
		return -1
	}
}

// IsBlocking reports whether the status stops forward movement
func (q QualityStatus) IsBlocking() bool {
	return q == QualityCritical || q == QualityHold
}

func (q QualityStatus) String() string {
	return string(q)
}

// WorseQuality returns the more severe of a and b
func WorseQuality(a, b QualityStatus) QualityStatus {
	if b.severity() > a.severity() {
		return b
	}
	return a
}
