package services

import "time"

func SetEmailClock(s *EmailService, now func() time.Time) { s.now = now }

func SetEmailKeyFunc(s *EmailService, f func() (string, error)) { s.newKey = f }
