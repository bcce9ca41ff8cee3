package record

import "testing"

func sampleRecord() Record {
	return Record{
		GUID:    "guid-001",
		Name:    "Acme Traders",
		Parent:  "Sundry Debtors",
		Address: "12 Market Road, Pune",
		Phone:   "+919812345678",
		Email:   "acme@example.com",
		Pincode: "411001",
	}
}

func TestFingerprintStable(t *testing.T) {
	r := sampleRecord()
	first := Fingerprint(&r)
	for i := 0; i < 10; i++ {
		if got := Fingerprint(&r); got != first {
			t.Fatalf("fingerprint changed between calls: %s vs %s", first, got)
		}
	}
	if len(first) != 32 {
		t.Errorf("expected 32 hex chars, got %d (%s)", len(first), first)
	}
}

func TestFingerprintSensitiveToIdentityFields(t *testing.T) {
	base := sampleRecord()
	baseDigest := Fingerprint(&base)

	mutations := map[string]func(*Record){
		"name":    func(r *Record) { r.Name = "Other Traders" },
		"address": func(r *Record) { r.Address = "99 New Street" },
		"phone":   func(r *Record) { r.Phone = "+919800000000" },
		"email":   func(r *Record) { r.Email = "other@example.com" },
		"pincode": func(r *Record) { r.Pincode = "411002" },
		"parent":  func(r *Record) { r.Parent = "Sundry Creditors" },
	}

	for field, mutate := range mutations {
		r := sampleRecord()
		mutate(&r)
		if Fingerprint(&r) == baseDigest {
			t.Errorf("changing %s did not change the fingerprint", field)
		}
	}
}

func TestFingerprintIgnoresBalances(t *testing.T) {
	r := sampleRecord()
	baseDigest := Fingerprint(&r)

	r.OpeningBalance = 1234.56
	r.ClosingBalance = -789.01
	r.GUID = "different-guid"
	lat, lng := 18.52, 73.85
	r.Latitude = &lat
	r.Longitude = &lng
	r.LocationSource = "geocoded"

	if Fingerprint(&r) != baseDigest {
		t.Error("fields outside the identity set affected the fingerprint")
	}
}

func TestFingerprintEmptyFields(t *testing.T) {
	// A record with all identity fields empty still fingerprints; missing
	// fields behave as empty strings, not as absent positions.
	empty := Record{}
	digest := Fingerprint(&empty)
	if digest == "" {
		t.Fatal("empty record produced empty fingerprint")
	}

	onlyName := Record{Name: "X"}
	if Fingerprint(&onlyName) == digest {
		t.Error("record with a name collided with the empty record")
	}
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	// The separator keeps adjacent fields from bleeding into each other.
	a := Record{Name: "AB", Address: "C"}
	b := Record{Name: "A", Address: "BC"}
	if Fingerprint(&a) == Fingerprint(&b) {
		t.Error("field boundary collision: AB|C == A|BC")
	}
}
