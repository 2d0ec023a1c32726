package postgres

// ClassifyForTest exposes classify to the external test package.
func ClassifyForTest(err error) error { return classify(err, "op") }
