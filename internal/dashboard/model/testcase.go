package model

// TestCase is one row of the uploaded sheet. All fields are kept as the
// text shown in the sheet.
type TestCase struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// TestCaseSet is the current snapshot of uploaded test cases in sheet order.
type TestCaseSet []TestCase

// ResultDocument is the wire shape of the current verdict.
type ResultDocument struct {
	TestResult Verdict `json:"test_result"`
}
