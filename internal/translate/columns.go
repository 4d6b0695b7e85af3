package translate

// Source column names. Lookups are case-insensitive, so these only need to
// match the export's spelling up to case.
const (
	ColIndividualID   = "IndividualId"
	ColHouseholdID    = "HouseholdId"
	ColFamilyPosition = "FamilyPosition"
	ColTitle          = "Title"
	ColFirstName      = "FirstName"
	ColMiddleName     = "MiddleName"
	ColLastName       = "LastName"
	ColGoesBy         = "GoesBy"
	ColSuffix         = "Suffix"
	ColGender         = "Gender"
	ColMaritalStatus  = "MaritalStatus"
	ColDateOfBirth    = "DateOfBirth"
	ColMemberStatus   = "MemberStatus"
	ColSubStatus      = "SubStatus"
	ColDateJoined     = "DateJoined"
	ColDeceased       = "Deceased"
	ColEnvelopeNumber = "EnvelopeNumber"
	ColGrade          = "Grade"
	ColCreatedDate    = "CreatedDate"
	ColModifiedDate   = "ModifiedDate"

	ColCompanyName = "CompanyName"
	ColStatus      = "Status"

	ColAddressType = "AddressType"
	ColAddress1    = "Address1"
	ColAddress2    = "Address2"
	ColCity        = "City"
	ColState       = "State"
	ColPostalCode  = "PostalCode"
	ColCountry     = "Country"

	ColPhoneType   = "PhoneType"
	ColPhoneNumber = "PhoneNumber"
	ColExtension   = "Extension"
	ColUnlisted    = "Unlisted"

	ColAttributeGroup = "AttributeGroup"
	ColAttributeName  = "AttributeName"
	ColAttributeValue = "AttributeValue"
	ColAttributeDate  = "AttributeDate"
	ColComment        = "Comment"

	ColNoteID    = "NoteId"
	ColNoteType  = "NoteType"
	ColNoteText  = "NoteText"
	ColNoteDate  = "NoteDate"
	ColCreatedBy = "CreatedBy"
	ColIsPrivate = "IsPrivate"

	ColFundName      = "FundName"
	ColSubFundName   = "SubFundName"
	ColTaxDeductible = "TaxDeductible"
	ColIsActive      = "IsActive"
	ColDescription   = "Description"

	ColBatchID     = "BatchId"
	ColBatchName   = "BatchName"
	ColBatchDate   = "BatchDate"
	ColBatchAmount = "BatchAmount"

	ColContributionID = "ContributionId"
	ColDetailID       = "DetailId"
	ColReceivedDate   = "ReceivedDate"
	ColCheckNumber    = "CheckNumber"
	ColPaymentType    = "PaymentType"
	ColAmount         = "Amount"
	ColMemo           = "Memo"

	ColPledgeID  = "PledgeId"
	ColStartDate = "StartDate"
	ColEndDate   = "EndDate"
	ColFrequency = "Frequency"

	ColGroupID       = "GroupId"
	ColGroupName     = "GroupName"
	ColParentGroupID = "ParentGroupId"
	ColGroupTypeID   = "GroupTypeId"
	ColGroupTypeName = "GroupTypeName"
	ColCapacity      = "Capacity"
	ColMeetingDay    = "MeetingDay"
	ColMeetingTime   = "MeetingTime"
	ColCampusName    = "CampusName"
	ColRole          = "Role"

	ColAttendanceID  = "AttendanceId"
	ColStartDateTime = "StartDateTime"
	ColEndDateTime   = "EndDateTime"
	ColNote          = "Note"
)
