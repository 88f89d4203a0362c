// Package student contains the student identity model of the WPS records system.
//
// The package defines:
//
//   - Profile: the record returned for the authenticated student
//   - Index: one enrolment ("indeks") of the student
//   - Context: the resolved (student id, exam index id) pair used downstream
//
// # Index selection
//
// When the profile does not carry an index id, the best index is picked from
// the student's index list by PickIndex:
//
//	ctx := student.NewContext(profile.StudentID, nil)
//	if id, ok := student.PickIndex(indexes); ok {
//	    ctx = student.NewContext(profile.StudentID, &id)
//	}
//
// The package has zero external dependencies.
package student
