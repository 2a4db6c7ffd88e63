// Package patients resolves the patient behind a Source appointment to a
// durable Store patient row.
//
// Appointments frequently arrive without the strong patient code; earlier
// tooling simply dropped them. The resolver instead walks a chain of
// identity sources, from cheapest to most expensive: the strong code, the
// insurance number via the offline archive, surname plus birth date via the
// archive, and finally provisioning a brand-new patient row. Resolution
// failures are per-appointment; one unresolvable patient never stops a run.
package patients
