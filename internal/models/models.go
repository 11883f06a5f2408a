package models

// All lists every table the service owns, in migration order.
func All() []any {
	return []any{
		&User{},
		&DetectionRecord{},
		&BehaviorData{},
		&Alert{},
		&DetectionZone{},
	}
}
